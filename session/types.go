package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive marks a session that new transcript entries may
	// still be appended to.
	StatusActive Status = "active"

	// StatusCompleted marks a closed session. Completed sessions are
	// never resumed.
	StatusCompleted Status = "completed"
)

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCompleted
}

// Entry is one transcript turn.
type Entry struct {
	// Role is the author of the turn, "user" or "assistant".
	Role string `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`

	// Timestamp records when the turn was appended.
	Timestamp time.Time `json:"timestamp"`

	// Thinking holds intermediate reasoning captured during the loop.
	Thinking string `json:"thinking,omitempty"`

	// TokensUsed is the total token spend behind this turn.
	TokensUsed int `json:"tokens_used,omitempty"`

	// Duration is how long the turn took to produce.
	Duration time.Duration `json:"duration,omitempty"`
}

// Session is the persisted transcript of one investigation
// conversation for a given message.
type Session struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// MessageID is the investigated message this session belongs to.
	MessageID string `json:"message_id"`

	// Status is active while the conversation may continue.
	Status Status `json:"status"`

	// Entries is the ordered transcript, oldest first.
	Entries []Entry `json:"entries"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active session for the given message with a fresh id.
func New(messageID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether entries may still be appended.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}
