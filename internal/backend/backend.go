package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// ErrMalformedReply is returned when a backend produces an unusable message
var ErrMalformedReply = errors.New("malformed reply")

// Backend produces the next assistant message for a conversation.
//
// Generate blocks until the reply is ready or ctx is done; callers that need
// asynchrony run it on their own goroutine. Implementations must not modify
// the snapshot they receive.
type Backend interface {
	Name() string
	Generate(ctx context.Context, snap session.Snapshot) (session.Message, error)
}

// Func adapts a plain function to the Backend interface
type Func struct {
	ID string
	Fn func(ctx context.Context, snap session.Snapshot) (session.Message, error)
}

// Name returns the backend identifier
func (f Func) Name() string {
	return f.ID
}

// Generate calls Fn
func (f Func) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	return f.Fn(ctx, snap)
}

// CheckReply verifies a backend result is an assistant message with text
func CheckReply(msg session.Message) error {
	if msg.Role != session.RoleAssistant {
		return fmt.Errorf("%w: role %q", ErrMalformedReply, msg.Role)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

// assistantReply wraps raw backend text in a new assistant message
func assistantReply(backendName, text string) (session.Message, error) {
	msg, err := session.NewMessage(session.RoleAssistant, text)
	if err != nil {
		return session.Message{}, fmt.Errorf("%w: empty response from %s", ErrMalformedReply, backendName)
	}
	return msg, nil
}

// chatHistory returns the recent user/assistant exchange for model backends.
// System-role transcript entries are local notices (failures, cancellations)
// and are not sent to models.
func chatHistory(snap session.Snapshot, maxMessages int) []session.Message {
	recent := snap.Recent(maxMessages)
	out := recent[:0]
	for _, m := range recent {
		if m.Role == session.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// HTTPOptions carries the dependencies shared by HTTP-based backends
type HTTPOptions struct {
	Client      *http.Client
	Meter       metric.Meter
	Mode        persona.Mode
	MaxMessages int
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if o.Meter == nil {
		o.Meter = noop.NewMeterProvider().Meter("backend")
	}
	if o.Mode == "" {
		o.Mode = persona.ModeVent
	}
	return o
}

// recordUsage records token usage counters reported by a provider
func recordUsage(ctx context.Context, meter metric.Meter, backendName string, usage map[string]int64) {
	for key, value := range usage {
		if value <= 0 {
			continue
		}
		counter, err := meter.Int64Counter(
			"llm.usage."+key,
			metric.WithDescription("LLM usage metric: "+key),
		)
		if err != nil {
			continue
		}
		counter.Add(ctx, value, metric.WithAttributes(backendAttr(backendName)))
	}
}

// lastUserText returns the lowercased text of the most recent user message
func lastUserText(snap session.Snapshot) string {
	msg, ok := snap.LastUser()
	if !ok {
		return ""
	}
	return strings.ToLower(msg.Text)
}
