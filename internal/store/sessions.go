package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"voxbridge/internal/model"
)

var ErrNotFound = errors.New("not found")

func (s *Store) CreateVoiceSession(sess model.VoiceSession) (model.VoiceSession, error) {
	if sess.UserID == "" {
		return model.VoiceSession{}, &PersistenceError{Op: "create voice session", Err: errors.New("missing user id")}
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.ExecutionStatus == "" {
		sess.ExecutionStatus = model.ExecutionPending
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO voice_sessions
			(id, user_id, transcript, audio_ref, intent_type, category, confidence,
			 parsed_data, execution_status, execution_result, executed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Transcript, sess.AudioRef, sess.IntentType,
		sess.Category, sess.Confidence, sess.ParsedData, sess.ExecutionStatus,
		sess.ExecutionResult, formatTimePtr(sess.ExecutedAt),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return model.VoiceSession{}, &PersistenceError{Op: "create voice session", Err: err}
	}
	return sess, nil
}

func (s *Store) GetVoiceSession(userID, id string) (model.VoiceSession, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, transcript, audio_ref, intent_type, category, confidence,
		       parsed_data, execution_status, execution_result, executed_at, created_at, updated_at
		FROM voice_sessions WHERE id = ? AND user_id = ?`, id, userID)
	return scanVoiceSession(row)
}

func (s *Store) ListVoiceSessions(userID string, limit int) ([]model.VoiceSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, transcript, audio_ref, intent_type, category, confidence,
		       parsed_data, execution_status, execution_result, executed_at, created_at, updated_at
		FROM voice_sessions WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list voice sessions", Err: err}
	}
	defer rows.Close()

	result := make([]model.VoiceSession, 0)
	for rows.Next() {
		sess, err := scanVoiceSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list voice sessions", Err: err}
	}
	return result, nil
}

// MarkSessionExecuted records the terminal outcome of a session. The
// update only matches rows still pending, so the first terminal
// transition wins and later calls report false.
func (s *Store) MarkSessionExecuted(userID, id, status, result, parsedData string) (bool, error) {
	now := time.Now()
	var executedAt any
	if status == model.ExecutionSuccess || status == model.ExecutionError {
		executedAt = formatTime(now)
	}

	res, err := s.db.Exec(`
		UPDATE voice_sessions
		SET execution_status = ?,
		    execution_result = ?,
		    parsed_data = CASE WHEN ? != '' THEN ? ELSE parsed_data END,
		    executed_at = COALESCE(?, executed_at),
		    updated_at = ?
		WHERE id = ? AND user_id = ? AND execution_status = 'pending'`,
		status, result, parsedData, parsedData, executedAt, formatTime(now), id, userID)
	if err != nil {
		return false, &PersistenceError{Op: "mark session executed", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "mark session executed", Err: err}
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoiceSession(row rowScanner) (model.VoiceSession, error) {
	var sess model.VoiceSession
	var executedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Transcript, &sess.AudioRef,
		&sess.IntentType, &sess.Category, &sess.Confidence, &sess.ParsedData,
		&sess.ExecutionStatus, &sess.ExecutionResult, &executedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.VoiceSession{}, ErrNotFound
	}
	if err != nil {
		return model.VoiceSession{}, &PersistenceError{Op: "scan voice session", Err: err}
	}
	sess.ExecutedAt = parseTimePtr(executedAt)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return sess, nil
}
