package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"TherapyBuddy/internal/backend"
	"TherapyBuddy/internal/session"
)

var (
	// ErrNoActiveTurn is returned by CancelActive when nothing is in flight
	ErrNoActiveTurn = errors.New("no reply in progress")
	// ErrSessionClosed ends turns whose result arrived after Close
	ErrSessionClosed = errors.New("conversation session closed")
	// ErrBackendPanic wraps a panic recovered from a backend
	ErrBackendPanic = errors.New("backend panicked")
)

// Rejection and failure reasons, used in logs, metrics and notices
const (
	reasonBlank     = "blank"
	reasonPending   = "pending"
	reasonClosed    = "closed"
	reasonTimeout   = "timeout"
	reasonCancelled = "cancelled"
	reasonMalformed = "malformed"
	reasonPanic     = "panic"
	reasonError     = "error"
)

// Controller owns one session's transcript and mediates its turns
type Controller struct {
	transcript   *session.Transcript
	backend      backend.Backend
	logger       *slog.Logger
	tracer       trace.Tracer
	meter        metric.Meter
	replyTimeout time.Duration

	ctx    context.Context // session lifetime
	cancel context.CancelFunc

	mu     sync.Mutex // serialises admission and completion
	active *Turn
	closed bool
	wg     sync.WaitGroup

	accepted metric.Int64Counter
	rejected metric.Int64Counter
	failed   metric.Int64Counter
	latency  metric.Float64Histogram
}

// New creates a controller for transcript using b to produce replies. The
// controller takes ownership of the transcript and closes it on Close.
func New(transcript *session.Transcript, b backend.Backend, opts ...Option) *Controller {
	c := &Controller{
		transcript: transcript,
		backend:    b,
		logger:     slog.Default(),
		tracer:     tracenoop.NewTracerProvider().Tracer("conversation"),
		meter:      metricnoop.NewMeterProvider().Meter("conversation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		"component", "conversation",
		"session_id", transcript.ID(),
		"backend", b.Name())
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.accepted, _ = c.meter.Int64Counter("turns.accepted",
		metric.WithDescription("Submissions admitted as turns"))
	c.rejected, _ = c.meter.Int64Counter("turns.rejected",
		metric.WithDescription("Submissions ignored by the admission check"))
	c.failed, _ = c.meter.Int64Counter("turns.failed",
		metric.WithDescription("Turns that ended without a reply"))
	c.latency, _ = c.meter.Float64Histogram("turns.duration",
		metric.WithDescription("Time from submission to completion in milliseconds"),
		metric.WithUnit("ms"))
	return c
}

// Transcript returns the session transcript for observation
func (c *Controller) Transcript() *session.Transcript {
	return c.transcript
}

// Backend returns the name of the reply backend
func (c *Controller) Backend() string {
	return c.backend.Name()
}

// Accepts reports whether Submit(text) would be admitted right now
func (c *Controller) Accepts(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejectLocked(strings.TrimSpace(text)) == ""
}

// Busy reports whether a reply is in flight
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Submit starts a turn for text. Blank text, a pending reply or a closed
// session make it a no-op returning nil. Otherwise the trimmed text has been
// appended, pending is set and the returned Turn tracks the reply.
func (c *Controller) Submit(text string) *Turn {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if reason := c.rejectLocked(text); reason != "" {
		c.reject(reason)
		return nil
	}

	userMsg, err := session.NewMessage(session.RoleUser, text)
	if err != nil {
		c.reject(reasonBlank)
		return nil
	}
	if err := c.transcript.Append(userMsg); err != nil {
		c.logger.Debug("submission rejected", "reason", reasonClosed, "error", err)
		c.reject(reasonClosed)
		return nil
	}
	if err := c.transcript.SetPending(true); err != nil {
		c.abandonLocked(userMsg, err)
		return nil
	}

	snap := c.transcript.Snapshot()

	var turnCtx context.Context
	var cancel context.CancelFunc
	if c.replyTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(c.ctx, c.replyTimeout)
	} else {
		turnCtx, cancel = context.WithCancel(c.ctx)
	}

	turn := newTurn(userMsg, cancel)
	c.active = turn
	c.accepted.Add(turnCtx, 1)

	c.logger.Info("turn started", "turn_id", turn.ID, "messages", len(snap.Messages))

	c.wg.Add(1)
	go c.run(turnCtx, turn, snap)
	return turn
}

// CancelActive cancels the in-flight reply, if any
func (c *Controller) CancelActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ErrNoActiveTurn
	}
	c.logger.Info("cancelling turn", "turn_id", c.active.ID)
	c.active.Cancel()
	return nil
}

// Close tears the session down: the in-flight reply is cancelled, any late
// result is dropped, and the transcript is closed. It waits for the backend
// goroutine to return. Safe to call multiple times.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	if c.transcript.Pending() {
		if err := c.transcript.SetPending(false); err != nil {
			c.logger.Warn("failed to clear pending on close", "error", err)
		}
	}
	c.transcript.Close()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("conversation closed", "messages", c.transcript.Len())
}

// rejectLocked returns the reason text would be refused, or "". Must be
// called with mu held.
func (c *Controller) rejectLocked(text string) string {
	switch {
	case c.closed || c.transcript.Closed():
		return reasonClosed
	case text == "":
		return reasonBlank
	case c.active != nil || c.transcript.Pending():
		return reasonPending
	}
	return ""
}

func (c *Controller) reject(reason string) {
	c.logger.Debug("submission ignored", "reason", reason)
	c.rejected.Add(c.ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// run drives one backend call and applies its outcome
func (c *Controller) run(ctx context.Context, turn *Turn, snap session.Snapshot) {
	defer c.wg.Done()
	defer turn.cancel()

	ctx, span := c.tracer.Start(ctx, "conversation_turn",
		trace.WithAttributes(
			attribute.String("session_id", snap.SessionID),
			attribute.String("turn_id", turn.ID),
			attribute.String("backend", c.backend.Name()),
		))
	defer span.End()

	start := time.Now()
	reply, err := c.generate(ctx, snap)
	if err == nil {
		err = backend.CheckReply(reply)
	}

	c.complete(ctx, turn, reply, err)

	c.latency.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// generate calls the backend, turning a panic into an error
func (c *Controller) generate(ctx context.Context, snap session.Snapshot) (reply session.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBackendPanic, r)
		}
	}()
	return c.backend.Generate(ctx, snap)
}

// complete applies a finished backend call to the transcript
func (c *Controller) complete(ctx context.Context, turn *Turn, reply session.Message, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == turn {
		c.active = nil
	}

	if c.closed {
		c.logger.Debug("dropping late result", "turn_id", turn.ID, "error", err)
		turn.complete(session.Message{}, ErrSessionClosed)
		return
	}

	if err == nil {
		if appendErr := c.transcript.Append(reply); appendErr != nil {
			err = fmt.Errorf("failed to append reply: %w", appendErr)
		}
	}

	if err != nil {
		reason := failureReason(ctx, err)
		c.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		c.logger.Warn("turn failed", "turn_id", turn.ID, "reason", reason, "error", err)

		c.appendNotice(reason)
		reply = session.Message{}
	} else {
		c.logger.Info("turn complete", "turn_id", turn.ID, "reply_id", reply.ID)
	}

	if pendingErr := c.transcript.SetPending(false); pendingErr != nil {
		c.logger.Error("failed to clear pending", "error", pendingErr)
	}
	turn.complete(reply, err)
}

// abandonLocked answers a user message that was appended but could not
// start a turn, so it is never left without a reply or a notice. Only
// reachable when something outside the controller holds pending.
func (c *Controller) abandonLocked(userMsg session.Message, err error) {
	c.failed.Add(c.ctx, 1, metric.WithAttributes(attribute.String("reason", reasonError)))
	c.logger.Error("failed to start turn", "message_id", userMsg.ID, "error", err)
	c.appendNotice(reasonError)
}

// appendNotice records a failed turn in the transcript
func (c *Controller) appendNotice(reason string) {
	notice, err := session.NewMessage(session.RoleSystem, noticeText(reason))
	if err == nil {
		err = c.transcript.Append(notice)
	}
	if err != nil {
		c.logger.Error("failed to append failure notice", "error", err)
	}
}

// failureReason classifies why a turn produced no reply
func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return reasonTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return reasonCancelled
	case errors.Is(err, backend.ErrMalformedReply):
		return reasonMalformed
	case errors.Is(err, ErrBackendPanic):
		return reasonPanic
	}
	return reasonError
}

// noticeText is the system message shown for a failed turn
func noticeText(reason string) string {
	switch reason {
	case reasonTimeout:
		return "The reply timed out. Please try again."
	case reasonCancelled:
		return "The reply was cancelled."
	case reasonMalformed:
		return "The reply could not be read. Please try again."
	}
	return "Something went wrong while generating a reply. Please try again."
}
