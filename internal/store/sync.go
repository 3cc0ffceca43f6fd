package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"voxbridge/internal/model"
)

// Sync upserts are keyed by (user, provider, external id), so re-syncing
// the same remote item updates the stored copy instead of duplicating it.
// The second write's fields win.

func (s *Store) UpsertEmail(e model.Email) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO emails
			(id, user_id, provider, external_id, sender, subject, preview,
			 timestamp, is_read, label, provider_account)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider, external_id) DO UPDATE SET
			sender = excluded.sender,
			subject = excluded.subject,
			preview = excluded.preview,
			timestamp = excluded.timestamp,
			is_read = excluded.is_read,
			label = excluded.label,
			provider_account = excluded.provider_account`,
		e.ID, e.UserID, e.Provider, e.ExternalID, e.Sender, e.Subject, e.Preview,
		formatTime(e.Timestamp), e.Read, e.Label, e.ProviderAccount)
	if err != nil {
		return &PersistenceError{Op: "upsert email", Err: err}
	}
	return nil
}

func (s *Store) UpsertSyncedEvent(e model.SyncedEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO synced_events
			(id, user_id, provider, external_id, title, date, time, location, is_all_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider, external_id) DO UPDATE SET
			title = excluded.title,
			date = excluded.date,
			time = excluded.time,
			location = excluded.location,
			is_all_day = excluded.is_all_day`,
		e.ID, e.UserID, e.Provider, e.ExternalID, e.Title, e.Date, e.Time, e.Location, e.AllDay)
	if err != nil {
		return &PersistenceError{Op: "upsert synced event", Err: err}
	}
	return nil
}

func (s *Store) GetEmail(userID, provider, externalID string) (model.Email, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, provider, external_id, sender, subject, preview,
		       timestamp, is_read, label, provider_account
		FROM emails WHERE user_id = ? AND provider = ? AND external_id = ?`,
		userID, provider, externalID)

	var e model.Email
	var ts string
	err := row.Scan(&e.ID, &e.UserID, &e.Provider, &e.ExternalID, &e.Sender,
		&e.Subject, &e.Preview, &ts, &e.Read, &e.Label, &e.ProviderAccount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Email{}, ErrNotFound
	}
	if err != nil {
		return model.Email{}, &PersistenceError{Op: "get email", Err: err}
	}
	e.Timestamp = parseTime(ts)
	return e, nil
}

func (s *Store) CountEmails(userID, provider string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM emails WHERE user_id = ? AND provider = ?`, userID, provider)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count emails", Err: err}
	}
	return n, nil
}

func (s *Store) CountSyncedEvents(userID, provider string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM synced_events WHERE user_id = ? AND provider = ?`, userID, provider)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count synced events", Err: err}
	}
	return n, nil
}
