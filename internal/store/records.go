package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"voxbridge/internal/model"
)

// Direct-write inserts used by the intent execution router. Each is a
// single atomic INSERT; a failure leaves no partial state.

func (s *Store) InsertTransaction(t model.Transaction) (model.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO transactions (id, user_id, date, store, amount, category, status, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Date, t.Store, t.Amount, t.Category, t.Status, t.Summary)
	if err != nil {
		return model.Transaction{}, &PersistenceError{Op: "insert transaction", Err: err}
	}
	return t, nil
}

func (s *Store) InsertContact(c model.Contact) (model.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO contacts (id, user_id, name, role, company, phone, where_met, why, when_met, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Role, c.Company, c.Phone, c.WhereMet, c.Why, c.WhenMet, c.Status)
	if err != nil {
		return model.Contact{}, &PersistenceError{Op: "insert contact", Err: err}
	}
	return c, nil
}

func (s *Store) InsertCalendarEvent(e model.CalendarEvent) (model.CalendarEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO calendar_events (id, user_id, title, date, time, duration, location, category, color, is_all_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Date, e.Time, e.Duration, e.Location, e.Category, e.Color, e.AllDay)
	if err != nil {
		return model.CalendarEvent{}, &PersistenceError{Op: "insert calendar event", Err: err}
	}
	return e, nil
}

func (s *Store) InsertTodo(t model.Todo) (model.Todo, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO project_todos (id, user_id, workspace_id, text, due_date, priority, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.WorkspaceID, t.Text, t.DueDate, t.Priority, t.Completed)
	if err != nil {
		return model.Todo{}, &PersistenceError{Op: "insert todo", Err: err}
	}
	return t, nil
}

func (s *Store) InsertWorkspace(w model.Workspace) (model.Workspace, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO workspaces (id, user_id, title, type, color)
		VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Title, w.Type, w.Color)
	if err != nil {
		return model.Workspace{}, &PersistenceError{Op: "insert workspace", Err: err}
	}
	return w, nil
}

func (s *Store) InsertDraft(d model.Draft) (model.Draft, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO drafts (id, user_id, type, title, detail, target_account, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Type, d.Title, d.Detail, d.TargetAccount, d.Status)
	if err != nil {
		return model.Draft{}, &PersistenceError{Op: "insert draft", Err: err}
	}
	return d, nil
}

// FirstWorkspaceID returns the user's oldest workspace, or empty when
// none exists. New todos attach to it by default.
func (s *Store) FirstWorkspaceID(userID string) (string, error) {
	row := s.db.QueryRow(`SELECT id FROM workspaces WHERE user_id = ? ORDER BY rowid LIMIT 1`, userID)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &PersistenceError{Op: "first workspace", Err: err}
	}
	return id, nil
}

func (s *Store) ListTransactions(userID string) ([]model.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, date, store, amount, category, status, summary
		FROM transactions WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Date, &t.Store, &t.Amount, &t.Category, &t.Status, &t.Summary); err != nil {
			return nil, &PersistenceError{Op: "list transactions", Err: err}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListContacts(userID string) ([]model.Contact, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, role, company, phone, where_met, why, when_met, status
		FROM contacts WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list contacts", Err: err}
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Role, &c.Company, &c.Phone, &c.WhereMet, &c.Why, &c.WhenMet, &c.Status); err != nil {
			return nil, &PersistenceError{Op: "list contacts", Err: err}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListCalendarEvents(userID string) ([]model.CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, date, time, duration, location, category, color, is_all_day
		FROM calendar_events WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list calendar events", Err: err}
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		var e model.CalendarEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.Date, &e.Time, &e.Duration, &e.Location, &e.Category, &e.Color, &e.AllDay); err != nil {
			return nil, &PersistenceError{Op: "list calendar events", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListWorkspaces(userID string) ([]model.Workspace, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, type, color
		FROM workspaces WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list workspaces", Err: err}
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		var w model.Workspace
		if err := rows.Scan(&w.ID, &w.UserID, &w.Title, &w.Type, &w.Color); err != nil {
			return nil, &PersistenceError{Op: "list workspaces", Err: err}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) ListTodos(userID string) ([]model.Todo, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, workspace_id, text, due_date, priority, completed
		FROM project_todos WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list todos", Err: err}
	}
	defer rows.Close()

	var out []model.Todo
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.UserID, &t.WorkspaceID, &t.Text, &t.DueDate, &t.Priority, &t.Completed); err != nil {
			return nil, &PersistenceError{Op: "list todos", Err: err}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
