package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"voxbridge/internal/intent"
)

func sttResponse(transcript string) map[string]any {
	return map[string]any{
		"results": map[string]any{
			"channels": []any{
				map[string]any{
					"alternatives": []any{
						map[string]any{"transcript": transcript},
					},
				},
			},
		},
	}
}

func classifierResponse(t *testing.T, in intent.Intent) map[string]any {
	t.Helper()
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": string(raw)}},
				},
			},
		},
	}
}

func newTestClient(sttHandler, llmHandler http.HandlerFunc) (*Client, func()) {
	stt := httptest.NewServer(sttHandler)
	llm := httptest.NewServer(llmHandler)
	c := NewClient(Config{
		DeepgramAPIKey:  "dg-key",
		GeminiAPIKey:    "gm-key",
		DeepgramBaseURL: stt.URL,
		GeminiBaseURL:   llm.URL,
	}, zerolog.Nop())
	return c, func() { stt.Close(); llm.Close() }
}

func TestProcess_Success(t *testing.T) {
	want := intent.Intent{
		Type: intent.TypeLog, Category: "expense",
		Title: "Coffee expense", Confidence: 0.92,
		Entities: map[string]any{"amount": 12.0},
	}
	c, cleanup := newTestClient(
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Token dg-key" {
				t.Fatalf("stt auth header: %s", got)
			}
			json.NewEncoder(w).Encode(sttResponse("I spent $12 on coffee"))
		},
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(classifierResponse(t, want))
		},
	)
	defer cleanup()

	got, err := c.Process(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Transcript != "I spent $12 on coffee" {
		t.Fatalf("transcript: %q", got.Transcript)
	}
	if got.Intent.Type != intent.TypeLog || got.Intent.Category != "expense" {
		t.Fatalf("intent: %+v", got.Intent)
	}
	if got.Intent.Entities["amount"] != 12.0 {
		t.Fatalf("entities: %v", got.Intent.Entities)
	}
}

func TestProcess_EmptyTranscriptIsPermanent(t *testing.T) {
	c, cleanup := newTestClient(
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(sttResponse("  "))
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("classifier must not be called for empty transcript")
		},
	)
	defer cleanup()

	_, err := c.Process(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var te *TransientError
	if errors.As(err, &te) {
		t.Fatalf("empty transcript should not be transient: %v", err)
	}
}

func TestProcess_UpstreamServerErrorIsTransient(t *testing.T) {
	c, cleanup := newTestClient(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)
	defer cleanup()

	_, err := c.Process(context.Background(), []byte("x"))
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError for 502, got %v", err)
	}
}

func TestProcess_MalformedIntentIsParseError(t *testing.T) {
	c, cleanup := newTestClient(
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(sttResponse("hello"))
		},
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []any{
					map[string]any{
						"content": map[string]any{
							"parts": []any{map[string]any{"text": "not json at all"}},
						},
					},
				},
			})
		},
	)
	defer cleanup()

	_, err := c.Process(context.Background(), []byte("x"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	var te *TransientError
	if errors.As(err, &te) {
		t.Fatal("parse error must not be transient")
	}
}

func TestProcess_ClientErrorIsPermanent(t *testing.T) {
	c, cleanup := newTestClient(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)
	defer cleanup()

	_, err := c.Process(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var te *TransientError
	if errors.As(err, &te) {
		t.Fatalf("400 should not be transient: %v", err)
	}
}
