package backend

import (
	"context"
	"time"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// Stub is the placeholder backend: it ignores the conversation and answers
// with a fixed acknowledgement after a fixed delay
type Stub struct {
	Delay time.Duration
	Reply string
}

// NewStub creates a stub backend. An empty reply uses persona.DefaultReply.
func NewStub(delay time.Duration, reply string) *Stub {
	if reply == "" {
		reply = persona.DefaultReply
	}
	return &Stub{Delay: delay, Reply: reply}
}

// Name returns the backend identifier
func (s *Stub) Name() string {
	return "stub"
}

// Generate waits for Delay, then returns Reply
func (s *Stub) Generate(ctx context.Context, _ session.Snapshot) (session.Message, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return session.Message{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return session.Message{}, err
	}
	return assistantReply(s.Name(), s.Reply)
}
