package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

type staticTokens struct{ token string }

func (s staticTokens) GetAccessToken(ctx context.Context, userID, provider string) (string, error) {
	return s.token, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func googleAPIStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		switch {
		case r.URL.Path == "/gmail/v1/users/me/messages":
			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "m1"}, {"id": "m2"}},
			})
		case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
			id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
			json.NewEncoder(w).Encode(map[string]any{
				"id":           id,
				"snippet":      "hello from " + id,
				"internalDate": "1735689600000",
				"labelIds":     []string{"INBOX", "UNREAD"},
				"payload": map[string]any{
					"headers": []map[string]string{
						{"name": "From", "value": "sam@example.com"},
						{"name": "Subject", "value": "Report " + id},
					},
				},
			})
		case r.URL.Path == "/calendar/v3/calendars/primary/events":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "e1", "summary": "Standup", "start": map[string]string{"dateTime": "2026-09-01T09:30:00Z"}},
					{"id": "e2", "summary": "Offsite", "start": map[string]string{"date": "2026-09-05"}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func connectGoogle(t *testing.T, st *store.Store) {
	t.Helper()
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u1", Provider: "google", AccessToken: "tok", RefreshToken: "rt",
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSyncGooglePullsMailAndCalendar(t *testing.T) {
	st := newTestStore(t)
	connectGoogle(t, st)
	api := googleAPIStub(t)
	defer api.Close()

	svc := NewService(st, staticTokens{token: "tok"}, zerolog.Nop())
	svc.APIBase = api.URL

	if err := svc.SyncGoogle(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	if n, _ := st.CountEmails("u1", "google"); n != 2 {
		t.Fatalf("emails = %d, want 2", n)
	}
	if n, _ := st.CountSyncedEvents("u1", "google"); n != 2 {
		t.Fatalf("events = %d, want 2", n)
	}

	email, err := st.GetEmail("u1", "google", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if email.Sender != "sam@example.com" || email.Subject != "Report m1" || email.Read {
		t.Fatalf("email = %+v", email)
	}
	if email.Timestamp.IsZero() {
		t.Fatal("timestamp not parsed")
	}

	cred, _ := st.GetActiveCredential("u1", "google")
	if cred.SyncStatus != model.SyncIdle {
		t.Fatalf("sync status = %q", cred.SyncStatus)
	}
	if cred.LastSyncAt == nil {
		t.Fatal("last_sync_at not stamped")
	}
	if cred.LastSyncError != "" {
		t.Fatalf("last_sync_error = %q", cred.LastSyncError)
	}
}

func TestSyncGoogleIdempotent(t *testing.T) {
	st := newTestStore(t)
	connectGoogle(t, st)
	api := googleAPIStub(t)
	defer api.Close()

	svc := NewService(st, staticTokens{token: "tok"}, zerolog.Nop())
	svc.APIBase = api.URL

	for i := 0; i < 3; i++ {
		if err := svc.SyncGoogle(context.Background(), "u1"); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := st.CountEmails("u1", "google"); n != 2 {
		t.Fatalf("emails = %d after re-sync, want 2", n)
	}
	if n, _ := st.CountSyncedEvents("u1", "google"); n != 2 {
		t.Fatalf("events = %d after re-sync, want 2", n)
	}
}

func TestSyncGoogleAPIFailureRecordsError(t *testing.T) {
	st := newTestStore(t)
	connectGoogle(t, st)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer api.Close()

	svc := NewService(st, staticTokens{token: "tok"}, zerolog.Nop())
	svc.APIBase = api.URL

	if err := svc.SyncGoogle(context.Background(), "u1"); err == nil {
		t.Fatal("expected sync error")
	}

	cred, _ := st.GetActiveCredential("u1", "google")
	if cred.SyncStatus != model.SyncIdle {
		t.Fatalf("status must return to idle, got %q", cred.SyncStatus)
	}
	if cred.LastSyncError == "" {
		t.Fatal("last_sync_error not recorded")
	}
	if cred.LastSyncAt != nil {
		t.Fatal("failed sync must not stamp last_sync_at")
	}
}

func TestSyncGoogleNotConnected(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, staticTokens{token: ""}, zerolog.Nop())

	if err := svc.SyncGoogle(context.Background(), "u1"); err == nil {
		t.Fatal("expected error when google is not connected")
	}
}

func TestSchedulerSweepSyncsConnectedUsers(t *testing.T) {
	st := newTestStore(t)
	connectGoogle(t, st)
	if _, err := st.UpsertCredential(model.IntegrationCredential{
		UserID: "u2", Provider: "google", AccessToken: "tok", RefreshToken: "rt",
	}); err != nil {
		t.Fatal(err)
	}
	api := googleAPIStub(t)
	defer api.Close()

	svc := NewService(st, staticTokens{token: "tok"}, zerolog.Nop())
	svc.APIBase = api.URL

	sched, err := NewScheduler(svc, st, "@hourly", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	sched.sweep()

	for _, user := range []string{"u1", "u2"} {
		if n, _ := st.CountEmails(user, "google"); n != 2 {
			t.Fatalf("user %s emails = %d", user, n)
		}
	}
	<-sched.Stop().Done()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, staticTokens{}, zerolog.Nop())
	if _, err := NewScheduler(svc, st, "not a cron spec", zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestSecondSyncUpdatesChangedFields(t *testing.T) {
	st := newTestStore(t)
	connectGoogle(t, st)

	subject := "v1"
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/gmail/v1/users/me/messages":
			json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "m1"}}})
		case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
			json.NewEncoder(w).Encode(map[string]any{
				"id": "m1", "snippet": "s", "internalDate": "1735689600000",
				"payload": map[string]any{"headers": []map[string]string{{"name": "Subject", "value": subject}}},
			})
		case r.URL.Path == "/calendar/v3/calendars/primary/events":
			json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
		}
	}))
	defer api.Close()

	svc := NewService(st, staticTokens{token: "tok"}, zerolog.Nop())
	svc.APIBase = api.URL

	if err := svc.SyncGoogle(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	subject = "v2"
	if err := svc.SyncGoogle(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	email, err := st.GetEmail("u1", "google", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if email.Subject != "v2" {
		t.Fatalf("subject = %q, re-sync must update in place", email.Subject)
	}
	if n, _ := st.CountEmails("u1", "google"); n != 1 {
		t.Fatalf("emails = %d, want 1", n)
	}
}
