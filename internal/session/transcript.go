package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each observer
	subscriberBufferSize = 64
)

var (
	ErrClosed         = errors.New("transcript is closed")
	ErrAlreadyStarted = errors.New("transcript already has appended messages")
	ErrAlreadyPending = errors.New("a response is already pending")
)

// EventKind distinguishes transcript change notifications
type EventKind int

const (
	EventAppended EventKind = iota
	EventPending
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Event is delivered to observers whenever the transcript changes.
// For EventAppended, Message and Index describe the new final element.
// For EventPending, Pending carries the new flag value.
type Event struct {
	Kind    EventKind
	Message Message
	Index   int
	Pending bool
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// Transcript is the ordered, append-only log of one conversation session
// plus the flag telling whether a response is in flight.
//
// Readers (presentation) may call any accessor from any goroutine.
// Mutation is expected to come from a single owner, the conversation controller.
type Transcript struct {
	id        string
	startTime time.Time
	logger    *slog.Logger

	mu          sync.RWMutex
	messages    []Message
	pending     bool
	appended    bool
	closed      bool
	subscribers map[string]*subscriber
}

// NewTranscript creates an empty transcript for a new session. Pass nil logger for default.
func NewTranscript(logger *slog.Logger) *Transcript {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Transcript{
		id:          id,
		startTime:   time.Now(),
		logger:      logger.With("component", "transcript", "session_id", id),
		subscribers: make(map[string]*subscriber),
	}
}

// ID returns the session identifier
func (t *Transcript) ID() string {
	return t.id
}

// StartTime returns when the session was created
func (t *Transcript) StartTime() time.Time {
	return t.startTime
}

// Seed initializes the transcript with messages such as a greeting.
// It may be called repeatedly until the first Append, never after.
func (t *Transcript) Seed(msgs ...Message) error {
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("invalid seed message: %w", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.appended {
		return ErrAlreadyStarted
	}
	for _, m := range msgs {
		t.messages = append(t.messages, m)
		t.publishLocked(Event{Kind: EventAppended, Message: m, Index: len(t.messages) - 1})
	}
	return nil
}

// Append adds msg to the end of the transcript and notifies observers
func (t *Transcript) Append(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.messages = append(t.messages, msg)
	t.appended = true
	t.publishLocked(Event{Kind: EventAppended, Message: msg, Index: len(t.messages) - 1})

	t.logger.Debug("message appended",
		"message_id", msg.ID,
		"role", msg.Role,
		"count", len(t.messages))
	return nil
}

// SetPending toggles the in-flight flag. Setting it while it is already set
// is a caller bug: the call fails and the state is left untouched.
func (t *Transcript) SetPending(pending bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if pending && t.pending {
		t.logger.Warn("pending set while a response is already pending")
		return ErrAlreadyPending
	}
	if t.pending == pending {
		return nil
	}
	t.pending = pending
	t.publishLocked(Event{Kind: EventPending, Pending: pending, Index: len(t.messages) - 1})
	return nil
}

// Pending reports whether a response is in flight
func (t *Transcript) Pending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending
}

// Messages returns a copy of the message sequence in conversation order
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the final message, if any
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Snapshot returns an immutable copy suitable for handing to a backend
func (t *Transcript) Snapshot() Snapshot {
	return Snapshot{
		SessionID: t.id,
		Messages:  t.Messages(),
	}
}

// Closed reports whether the transcript has been torn down
func (t *Transcript) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Subscribe registers an observer. Returns a channel that receives events and
// a subscription ID for Unsubscribe. The subscription is removed when ctx is
// cancelled. Events are dropped for observers whose buffer is full.
func (t *Transcript) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	sub := &subscriber{
		ch:   make(chan Event, subscriberBufferSize),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(sub.ch)
		return sub.ch, subID
	}
	t.subscribers[subID] = sub
	t.mu.Unlock()

	t.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			t.Unsubscribe(subID)
		case <-sub.done:
		}
	}()

	return sub.ch, subID
}

// Unsubscribe removes a subscription and closes its channel
func (t *Transcript) Unsubscribe(subID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subscribers[subID]
	if !ok {
		return
	}
	delete(t.subscribers, subID)
	close(sub.done)
	close(sub.ch)

	t.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close tears the transcript down. Further mutation fails with ErrClosed
// and every subscriber channel is closed. Safe to call multiple times.
func (t *Transcript) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subscribers {
		close(sub.done)
		close(sub.ch)
		delete(t.subscribers, id)
	}
	t.logger.Debug("transcript closed", "count", len(t.messages))
}

// publishLocked fans an event out without blocking. Must be called with mu held,
// which keeps delivery order identical to mutation order.
func (t *Transcript) publishLocked(ev Event) {
	for id, sub := range t.subscribers {
		select {
		case sub.ch <- ev:
		default:
			t.logger.Debug("dropped event for slow subscriber",
				"sub_id", id,
				"event", ev.Kind.String())
		}
	}
}
