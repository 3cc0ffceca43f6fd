package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"voxbridge/internal/metrics"
	"voxbridge/internal/model"
	"voxbridge/internal/store"
)

const (
	mailBatchSize  = 20
	calendarWindow = 30 * 24 * time.Hour
)

// TokenSource resolves a live access token for (user, provider).
type TokenSource interface {
	GetAccessToken(ctx context.Context, userID, provider string) (string, error)
}

// Service pulls inbox and calendar data from Google and upserts it
// into the local store. Re-running a sync updates existing rows in
// place; it never duplicates a remote item.
type Service struct {
	store  *store.Store
	tokens TokenSource
	http   *http.Client
	logger zerolog.Logger

	// Overridable for tests.
	APIBase string
	now     func() time.Time
}

func NewService(st *store.Store, tokens TokenSource, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		tokens:  tokens,
		http:    &http.Client{Timeout: 20 * time.Second},
		logger:  logger.With().Str("component", "sync").Logger(),
		APIBase: "https://www.googleapis.com",
		now:     time.Now,
	}
}

// SyncGoogle runs one full mail-and-calendar pull for the user. The
// credential's sync_status is flipped to syncing for the duration and
// back to idle afterwards, whether or not the pull succeeded; failure
// detail lands in last_sync_error.
func (s *Service) SyncGoogle(ctx context.Context, userID string) error {
	token, err := s.tokens.GetAccessToken(ctx, userID, "google")
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("google account not connected")
	}

	if err := s.store.SetSyncStatus(userID, "google", model.SyncSyncing, "", nil); err != nil {
		return err
	}

	mailErr := s.syncMail(ctx, userID, token)
	calErr := s.syncCalendar(ctx, userID, token)

	now := s.now()
	if err := errors.Join(mailErr, calErr); err != nil {
		s.logger.Warn().Err(err).Str("user", userID).Msg("google sync failed")
		metrics.SyncRuns.WithLabelValues("google", "error").Inc()
		if stErr := s.store.SetSyncStatus(userID, "google", model.SyncIdle, err.Error(), nil); stErr != nil {
			return stErr
		}
		return err
	}

	metrics.SyncRuns.WithLabelValues("google", "success").Inc()
	return s.store.SetSyncStatus(userID, "google", model.SyncIdle, "", &now)
}

func (s *Service) syncMail(ctx context.Context, userID, token string) error {
	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	listURL := fmt.Sprintf("%s/gmail/v1/users/me/messages?maxResults=%d", s.APIBase, mailBatchSize)
	if err := s.get(ctx, listURL, token, &list); err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	for _, m := range list.Messages {
		var msg struct {
			ID           string   `json:"id"`
			Snippet      string   `json:"snippet"`
			InternalDate string   `json:"internalDate"`
			LabelIDs     []string `json:"labelIds"`
			Payload      struct {
				Headers []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"headers"`
			} `json:"payload"`
		}
		msgURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject",
			s.APIBase, url.PathEscape(m.ID))
		if err := s.get(ctx, msgURL, token, &msg); err != nil {
			return fmt.Errorf("fetch message %s: %w", m.ID, err)
		}

		email := model.Email{
			UserID:     userID,
			Provider:   "google",
			ExternalID: msg.ID,
			Preview:    msg.Snippet,
			Read:       true,
			Label:      "inbox",
		}
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				email.Sender = h.Value
			case "Subject":
				email.Subject = h.Value
			}
		}
		for _, l := range msg.LabelIDs {
			if l == "UNREAD" {
				email.Read = false
			}
		}
		if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
			email.Timestamp = time.UnixMilli(ms)
		}
		if err := s.store.UpsertEmail(email); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) syncCalendar(ctx context.Context, userID, token string) error {
	now := s.now()
	q := url.Values{}
	q.Set("timeMin", now.Format(time.RFC3339))
	q.Set("timeMax", now.Add(calendarWindow).Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var list struct {
		Items []struct {
			ID       string `json:"id"`
			Summary  string `json:"summary"`
			Location string `json:"location"`
			Start    struct {
				DateTime string `json:"dateTime"`
				Date     string `json:"date"`
			} `json:"start"`
		} `json:"items"`
	}
	eventsURL := s.APIBase + "/calendar/v3/calendars/primary/events?" + q.Encode()
	if err := s.get(ctx, eventsURL, token, &list); err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	for _, item := range list.Items {
		ev := model.SyncedEvent{
			UserID:     userID,
			Provider:   "google",
			ExternalID: item.ID,
			Title:      item.Summary,
			Location:   item.Location,
		}
		switch {
		case item.Start.DateTime != "":
			if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
				ev.Date = t.Format("2006-01-02")
				ev.Time = t.Format("15:04")
			}
		case item.Start.Date != "":
			ev.Date = item.Start.Date
			ev.AllDay = true
		}
		if err := s.store.UpsertSyncedEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) get(ctx context.Context, rawURL, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("google api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
