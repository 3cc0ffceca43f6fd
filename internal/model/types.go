package model

import "time"

// Execution status values for a voice session.
const (
	ExecutionPending   = "pending"
	ExecutionSuccess   = "success"
	ExecutionError     = "error"
	ExecutionCancelled = "cancelled"
)

// Sync status values for an integration credential.
const (
	SyncIdle    = "idle"
	SyncSyncing = "syncing"
)

type VoiceSession struct {
	ID              string
	UserID          string
	Transcript      string
	AudioRef        string
	IntentType      string
	Category        string
	Confidence      float64
	ParsedData      string // JSON-encoded intent
	ExecutionStatus string
	ExecutionResult string // JSON-encoded result or error
	ExecutedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type IntegrationCredential struct {
	ID              string
	UserID          string
	Provider        string
	AccessToken     string
	RefreshToken    string     // empty for providers without refresh capability
	TokenExpiresAt  *time.Time // nil for non-expiring tokens
	ProviderAccount string
	Scopes          string // JSON blob of provider-specific grant details
	ConnectedAt     time.Time
	DisconnectedAt  *time.Time
	SyncStatus      string
	LastSyncAt      *time.Time
	LastSyncError   string
}

func (c IntegrationCredential) Active() bool {
	return c.DisconnectedAt == nil
}

type Transaction struct {
	ID       string
	UserID   string
	Date     string
	Store    string
	Amount   float64
	Category string
	Status   string
	Summary  string
}

type Contact struct {
	ID       string
	UserID   string
	Name     string
	Role     string
	Company  string
	Phone    string
	WhereMet string
	Why      string
	WhenMet  string
	Status   string
}

type CalendarEvent struct {
	ID       string
	UserID   string
	Title    string
	Date     string
	Time     string
	Duration string
	Location string
	Category string
	Color    string
	AllDay   bool
}

type Todo struct {
	ID          string
	UserID      string
	WorkspaceID string
	Text        string
	DueDate     string
	Priority    string
	Completed   bool
}

type Workspace struct {
	ID     string
	UserID string
	Title  string
	Type   string
	Color  string
}

type Draft struct {
	ID            string
	UserID        string
	Type          string
	Title         string
	Detail        string
	TargetAccount string
	Status        string
}

// Email is a provider-synced inbox item. (UserID, Provider, ExternalID)
// identifies the remote message; re-syncing the same id updates in place.
type Email struct {
	ID              string
	UserID          string
	Provider        string
	ExternalID      string
	Sender          string
	Subject         string
	Preview         string
	Timestamp       time.Time
	Read            bool
	Label           string
	ProviderAccount string
}

// SyncedEvent is a provider-synced calendar entry, keyed like Email.
type SyncedEvent struct {
	ID         string
	UserID     string
	Provider   string
	ExternalID string
	Title      string
	Date       string
	Time       string
	Location   string
	AllDay     bool
}
