package credential

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cred.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testClients() map[string]Client {
	return map[string]Client{
		"google":    {ID: "gid", Secret: "gsecret"},
		"microsoft": {ID: "mid", Secret: "msecret"},
		"notion":    {ID: "nid", Secret: "nsecret"},
		"slack":     {ID: "sid", Secret: "ssecret"},
	}
}

func googleTokenServer(t *testing.T, refreshCalls *int32, newRefreshToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			// Best-effort userinfo lookups land here; failing them is
			// part of the contract under test.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
			return
		}
		switch r.Form.Get("grant_type") {
		case "refresh_token":
			atomic.AddInt32(refreshCalls, 1)
			resp := map[string]any{"access_token": "refreshed-at", "expires_in": 3600}
			if newRefreshToken != "" {
				resp["refresh_token"] = newRefreshToken
			}
			json.NewEncoder(w).Encode(resp)
		case "authorization_code":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "exchanged-at", "refresh_token": "exchanged-rt", "expires_in": 3600,
			})
		default:
			t.Errorf("unexpected grant_type: %s", r.Form.Get("grant_type"))
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func newGoogleManager(t *testing.T, st *store.Store, tokenURL string) *Manager {
	t.Helper()
	p := NewGoogleProvider()
	p.TokenURL = tokenURL
	p.UserinfoURL = tokenURL + "/nowhere" // account fetch is best-effort
	return NewManager(st, testClients(), zerolog.Nop(), p)
}

func TestGetAccessToken_NeverConnected(t *testing.T) {
	st := newTestStore(t)
	m := newGoogleManager(t, st, "http://unused.invalid")

	tok, err := m.GetAccessToken(context.Background(), "u1", "google")
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token, got %q", tok)
	}
}

func TestGetAccessToken_CacheHitBeyondBuffer(t *testing.T) {
	st := newTestStore(t)
	var refreshCalls int32
	srv := googleTokenServer(t, &refreshCalls, "")
	defer srv.Close()
	m := newGoogleManager(t, st, srv.URL)

	expiry := time.Now().Add(time.Hour)
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google",
		AccessToken: "cached-at", RefreshToken: "rt", TokenExpiresAt: &expiry,
	}); err != nil {
		t.Fatal(err)
	}

	tok, err := m.GetAccessToken(context.Background(), "u1", "google")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "cached-at" {
		t.Fatalf("expected cached token unchanged, got %q", tok)
	}
	if atomic.LoadInt32(&refreshCalls) != 0 {
		t.Fatalf("refresh should not have been called, got %d", refreshCalls)
	}
}

func TestGetAccessToken_RefreshesWithinBuffer(t *testing.T) {
	st := newTestStore(t)
	var refreshCalls int32
	srv := googleTokenServer(t, &refreshCalls, "rotated-rt")
	defer srv.Close()
	m := newGoogleManager(t, st, srv.URL)

	expiry := time.Now().Add(2 * time.Minute) // inside the 5-minute buffer
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google",
		AccessToken: "stale-at", RefreshToken: "rt", TokenExpiresAt: &expiry,
	}); err != nil {
		t.Fatal(err)
	}

	tok, err := m.GetAccessToken(context.Background(), "u1", "google")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "refreshed-at" {
		t.Fatalf("expected refreshed token, got %q", tok)
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", n)
	}

	// Rotated refresh token persisted.
	cred, err := st.GetActiveCredential("u1", "google")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "refreshed-at" || cred.RefreshToken != "rotated-rt" {
		t.Fatalf("tokens not persisted: %+v", cred)
	}
	if cred.TokenExpiresAt == nil || !cred.TokenExpiresAt.After(time.Now().Add(30*time.Minute)) {
		t.Fatalf("expiry not advanced: %v", cred.TokenExpiresAt)
	}
}

func TestGetAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	st := newTestStore(t)
	// A slow token endpoint holds the refresh flight open long enough
	// that every racing caller joins it instead of starting another.
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "refreshed-at", "refresh_token": "rotated-rt", "expires_in": 3600,
		})
	}))
	defer srv.Close()
	m := newGoogleManager(t, st, srv.URL)

	expiry := time.Now().Add(2 * time.Minute)
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google",
		AccessToken: "stale-at", RefreshToken: "rt", TokenExpiresAt: &expiry,
	}); err != nil {
		t.Fatal(err)
	}

	const callers = 8
	start := make(chan struct{})
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = m.GetAccessToken(context.Background(), "u1", "google")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "refreshed-at" {
			t.Fatalf("caller %d got %q", i, tokens[i])
		}
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("expected exactly one refresh exchange, got %d", n)
	}
}

func TestGetAccessToken_FailedRefreshKeepsStoredTokens(t *testing.T) {
	st := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}))
	defer srv.Close()
	m := newGoogleManager(t, st, srv.URL)

	expiry := time.Now().Add(-time.Minute)
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google",
		AccessToken: "old-at", RefreshToken: "old-rt", TokenExpiresAt: &expiry,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := m.GetAccessToken(context.Background(), "u1", "google")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}

	cred, _ := st.GetActiveCredential("u1", "google")
	if cred.AccessToken != "old-at" || cred.RefreshToken != "old-rt" {
		t.Fatalf("stored tokens must not change on failed refresh: %+v", cred)
	}
}

func TestGetAccessToken_NoRefreshTokenRecorded(t *testing.T) {
	st := newTestStore(t)
	m := newGoogleManager(t, st, "http://unused.invalid")

	expiry := time.Now().Add(-time.Minute)
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google", AccessToken: "at", TokenExpiresAt: &expiry,
	}); err != nil {
		t.Fatal(err)
	}

	tok, err := m.GetAccessToken(context.Background(), "u1", "google")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "" {
		t.Fatalf("expired token without refresh capability should yield no token, got %q", tok)
	}
}

func TestGetAccessToken_NonExpiringProviderSkipsRefresh(t *testing.T) {
	st := newTestStore(t)
	p := NewSlackProvider()
	m := NewManager(st, testClients(), zerolog.Nop(), p)

	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "slack", AccessToken: "xoxp-token",
	}); err != nil {
		t.Fatal(err)
	}

	tok, err := m.GetAccessToken(context.Background(), "u1", "slack")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "xoxp-token" {
		t.Fatalf("workspace token should be returned as stored, got %q", tok)
	}
}

func TestGetAccessToken_MissingProviderConfig(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, map[string]Client{}, zerolog.Nop(), NewGoogleProvider())

	_, err := m.GetAccessToken(context.Background(), "u1", "google")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestConnect_ExchangeAndUpsert(t *testing.T) {
	st := newTestStore(t)
	var refreshCalls int32
	srv := googleTokenServer(t, &refreshCalls, "")
	defer srv.Close()
	m := newGoogleManager(t, st, srv.URL)

	cred, err := m.Connect(context.Background(), "u1", "google", "auth-code", "https://server/callback")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if cred.AccessToken != "exchanged-at" || cred.RefreshToken != "exchanged-rt" {
		t.Fatalf("connect tokens: %+v", cred)
	}
	if cred.TokenExpiresAt == nil {
		t.Fatal("expiry not set on connect")
	}
	if cred.DisconnectedAt != nil {
		t.Fatal("connected row should be active")
	}
}

func TestDisconnect_ClearsLocalTokensEvenWhenRevokeFails(t *testing.T) {
	st := newTestStore(t)
	p := NewGoogleProvider()
	p.RevokeURL = "http://127.0.0.1:1/revoke" // nothing listening
	m := NewManager(st, testClients(), zerolog.Nop(), p)

	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google", AccessToken: "at", RefreshToken: "rt",
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.Disconnect(context.Background(), "u1", "google"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if _, err := st.GetActiveCredential("u1", "google"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("credential should be disconnected, got %v", err)
	}
	creds, _ := st.ListCredentials("u1")
	if len(creds) != 1 || creds[0].AccessToken != "" || creds[0].RefreshToken != "" {
		t.Fatalf("local tokens not cleared: %+v", creds)
	}
}

func TestStateRoundTrip(t *testing.T) {
	encoded := EncodeState(State{UserID: "u1", RedirectURL: "app://done"})
	decoded, err := DecodeState(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.UserID != "u1" || decoded.RedirectURL != "app://done" {
		t.Fatalf("round trip: %+v", decoded)
	}

	if _, err := DecodeState("%%%not-base64"); err == nil {
		t.Fatal("expected error for malformed state")
	}
	if _, err := DecodeState(EncodeState(State{})); err == nil {
		t.Fatal("expected error for empty state fields")
	}
}

func TestAuthURL_EncodesState(t *testing.T) {
	st := newTestStore(t)
	m := NewManager(st, testClients(), zerolog.Nop(), NewGoogleProvider())

	u, err := m.AuthURL("u1", "google", "app://done", "https://server/callback")
	if err != nil {
		t.Fatal(err)
	}
	if u == "" {
		t.Fatal("empty auth url")
	}

	_, err = m.AuthURL("u1", "github", "app://done", "https://server/callback")
	if err == nil {
		t.Fatal("unknown provider should fail")
	}
}
