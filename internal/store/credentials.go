package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"voxbridge/internal/model"
)

// UpsertCredential stores the result of an OAuth exchange. One row exists
// per (user, provider); reconnecting revives a disconnected row. An empty
// refresh token on the new exchange preserves the previously stored one,
// since some providers omit it on repeat consent.
func (s *Store) UpsertCredential(cred model.IntegrationCredential) (model.IntegrationCredential, error) {
	if cred.UserID == "" || cred.Provider == "" {
		return model.IntegrationCredential{}, &PersistenceError{Op: "upsert credential", Err: errors.New("missing user or provider")}
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	if cred.ConnectedAt.IsZero() {
		cred.ConnectedAt = time.Now()
	}
	if cred.SyncStatus == "" {
		cred.SyncStatus = model.SyncIdle
	}

	_, err := s.db.Exec(`
		INSERT INTO user_integrations
			(id, user_id, provider, access_token, refresh_token, token_expires_at,
			 provider_account, scopes, connected_at, disconnected_at, sync_status,
			 last_sync_at, last_sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL, '')
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != ''
				THEN excluded.refresh_token ELSE user_integrations.refresh_token END,
			token_expires_at = excluded.token_expires_at,
			provider_account = excluded.provider_account,
			scopes = excluded.scopes,
			connected_at = excluded.connected_at,
			disconnected_at = NULL,
			sync_status = excluded.sync_status,
			last_sync_error = ''`,
		cred.ID, cred.UserID, cred.Provider, cred.AccessToken, cred.RefreshToken,
		formatTimePtr(cred.TokenExpiresAt), cred.ProviderAccount, cred.Scopes,
		formatTime(cred.ConnectedAt), cred.SyncStatus)
	if err != nil {
		return model.IntegrationCredential{}, &PersistenceError{Op: "upsert credential", Err: err}
	}
	return s.GetActiveCredential(cred.UserID, cred.Provider)
}

// GetActiveCredential returns the connected credential row, or ErrNotFound
// when the provider was never connected or has been disconnected.
func (s *Store) GetActiveCredential(userID, provider string) (model.IntegrationCredential, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, provider, access_token, refresh_token, token_expires_at,
		       provider_account, scopes, connected_at, disconnected_at, sync_status,
		       last_sync_at, last_sync_error
		FROM user_integrations
		WHERE user_id = ? AND provider = ? AND disconnected_at IS NULL`, userID, provider)
	return scanCredential(row)
}

func (s *Store) ListCredentials(userID string) ([]model.IntegrationCredential, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, provider, access_token, refresh_token, token_expires_at,
		       provider_account, scopes, connected_at, disconnected_at, sync_status,
		       last_sync_at, last_sync_error
		FROM user_integrations WHERE user_id = ? ORDER BY provider`, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list credentials", Err: err}
	}
	defer rows.Close()

	result := make([]model.IntegrationCredential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list credentials", Err: err}
	}
	return result, nil
}

// ListActiveCredentialsByProvider returns every user's connected
// credential for a provider; the sync sweep iterates this.
func (s *Store) ListActiveCredentialsByProvider(provider string) ([]model.IntegrationCredential, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, provider, access_token, refresh_token, token_expires_at,
		       provider_account, scopes, connected_at, disconnected_at, sync_status,
		       last_sync_at, last_sync_error
		FROM user_integrations WHERE provider = ? AND disconnected_at IS NULL`, provider)
	if err != nil {
		return nil, &PersistenceError{Op: "list active credentials", Err: err}
	}
	defer rows.Close()

	result := make([]model.IntegrationCredential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list active credentials", Err: err}
	}
	return result, nil
}

// UpdateCredentialTokens persists a refreshed access token (and rotated
// refresh token when the provider issued one).
func (s *Store) UpdateCredentialTokens(userID, provider, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE user_integrations
		SET access_token = ?,
		    refresh_token = CASE WHEN ? != '' THEN ? ELSE refresh_token END,
		    token_expires_at = ?
		WHERE user_id = ? AND provider = ? AND disconnected_at IS NULL`,
		accessToken, refreshToken, refreshToken, formatTimePtr(expiresAt), userID, provider)
	if err != nil {
		return &PersistenceError{Op: "update credential tokens", Err: err}
	}
	return nil
}

func (s *Store) SetSyncStatus(userID, provider, status, syncErr string, lastSyncAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE user_integrations
		SET sync_status = ?, last_sync_error = ?, last_sync_at = COALESCE(?, last_sync_at)
		WHERE user_id = ? AND provider = ?`,
		status, syncErr, formatTimePtr(lastSyncAt), userID, provider)
	if err != nil {
		return &PersistenceError{Op: "set sync status", Err: err}
	}
	return nil
}

// DisconnectCredential clears tokens and stamps disconnected_at. The row
// itself is kept; credentials are never hard-deleted.
func (s *Store) DisconnectCredential(userID, provider string) error {
	_, err := s.db.Exec(`
		UPDATE user_integrations
		SET disconnected_at = ?, access_token = '', refresh_token = '',
		    sync_status = ?, last_sync_error = ''
		WHERE user_id = ? AND provider = ?`,
		formatTime(time.Now()), model.SyncIdle, userID, provider)
	if err != nil {
		return &PersistenceError{Op: "disconnect credential", Err: err}
	}
	return nil
}

func scanCredential(row rowScanner) (model.IntegrationCredential, error) {
	var cred model.IntegrationCredential
	var expiresAt, disconnectedAt, lastSyncAt sql.NullString
	var connectedAt string
	err := row.Scan(&cred.ID, &cred.UserID, &cred.Provider, &cred.AccessToken,
		&cred.RefreshToken, &expiresAt, &cred.ProviderAccount, &cred.Scopes,
		&connectedAt, &disconnectedAt, &cred.SyncStatus, &lastSyncAt, &cred.LastSyncError)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IntegrationCredential{}, ErrNotFound
	}
	if err != nil {
		return model.IntegrationCredential{}, &PersistenceError{Op: "scan credential", Err: err}
	}
	cred.TokenExpiresAt = parseTimePtr(expiresAt)
	cred.DisconnectedAt = parseTimePtr(disconnectedAt)
	cred.LastSyncAt = parseTimePtr(lastSyncAt)
	cred.ConnectedAt = parseTime(connectedAt)
	return cred, nil
}
