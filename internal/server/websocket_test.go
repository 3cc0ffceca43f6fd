package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"voxbridge/internal/auth"
	"voxbridge/internal/hub"
)

func TestWebSocketPingPong(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)

	tok, err := auth.CreateToken("user-1", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var resp map[string]any
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp["type"] != "pong" {
		t.Fatalf("expected pong, got %v", resp)
	}
}

func TestWebSocketReceivesVoiceStateEvents(t *testing.T) {
	deps, _ := testDeps(t)
	wsHub := hub.New()
	deps.Hub = wsHub
	r := NewRouter(deps)

	tok, err := auth.CreateToken("user-1", deps.TokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Round-trip a ping first so registration is complete before the
	// event is published.
	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var pong map[string]any
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	wsHub.Publish("user-1", hub.Event{Type: "voice_state", SessionID: "s1", State: "review"})

	var ev hub.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Type != "voice_state" || ev.State != "review" || ev.SessionID != "s1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	deps, _ := testDeps(t)
	r := NewRouter(deps)
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=not-a-token"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected dial failure with bad token")
	}
}
