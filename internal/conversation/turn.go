package conversation

import (
	"context"

	"TherapyBuddy/internal/session"
)

// Turn is one admitted request/response exchange
type Turn struct {
	ID          string
	UserMessage session.Message

	cancel context.CancelFunc
	done   chan struct{}
	reply  session.Message
	err    error
}

func newTurn(userMsg session.Message, cancel context.CancelFunc) *Turn {
	return &Turn{
		ID:          userMsg.ID,
		UserMessage: userMsg,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Done is closed once the turn has completed and the transcript is updated
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn completes. It returns the appended assistant
// message, or the error that ended the turn.
func (t *Turn) Wait() (session.Message, error) {
	<-t.done
	return t.reply, t.err
}

// Cancel abandons the backend call. The turn still completes, with a
// cancellation notice.
func (t *Turn) Cancel() {
	t.cancel()
}

func (t *Turn) complete(reply session.Message, err error) {
	t.reply = reply
	t.err = err
	close(t.done)
}
