package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	ErrEmptyText   = errors.New("message text is empty")
	ErrInvalidRole = errors.New("invalid message role")
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message represents a single utterance in a transcript.
// Messages are values: a Transcript hands out copies, so a stored message
// can never be edited after it was appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and the current time.
// The text is trimmed; blank text is rejected.
func NewMessage(role Role, text string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, ErrEmptyText
	}
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      trimmed,
		Timestamp: time.Now(),
	}, nil
}

// Validate checks the invariants every stored message must satisfy
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyText
	}
	if m.ID == "" {
		return errors.New("message id is empty")
	}
	return nil
}

// Snapshot is an immutable copy of a transcript handed to response backends
type Snapshot struct {
	SessionID string
	Messages  []Message
}

// Recent returns the last n messages, or all of them when n <= 0.
// The returned slice is a copy.
func (s Snapshot) Recent(n int) []Message {
	msgs := s.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// LastUser returns the most recent user message, if any
func (s Snapshot) LastUser() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}
