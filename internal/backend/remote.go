package backend

import (
	"context"
	"fmt"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/rpc"
	"TherapyBuddy/internal/session"
)

// Remote delegates replies to an out-of-process responder over JSON-RPC
type Remote struct {
	client      rpc.Client
	mode        persona.Mode
	maxMessages int
}

// NewRemote creates a backend that calls conversation/reply on client.
// The caller is expected to have run client.Initialize.
func NewRemote(client rpc.Client, mode persona.Mode, maxMessages int) *Remote {
	return &Remote{client: client, mode: mode, maxMessages: maxMessages}
}

// Name returns the backend identifier
func (r *Remote) Name() string {
	return "remote:" + r.client.Name()
}

// Generate sends the recent history to the responder and wraps its answer
func (r *Remote) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	history := chatHistory(snap, r.maxMessages)
	params := rpc.ReplyParams{
		SessionID: snap.SessionID,
		Mode:      string(r.mode),
		Messages:  make([]rpc.WireMessage, 0, len(history)),
	}
	for _, m := range history {
		params.Messages = append(params.Messages, rpc.WireMessage{
			Role:      string(m.Role),
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}

	var result rpc.ReplyResult
	if err := r.client.Call(ctx, rpc.MethodReply, params, &result); err != nil {
		return session.Message{}, fmt.Errorf("remote reply failed: %w", err)
	}
	return assistantReply(r.Name(), result.Text)
}

// Close disconnects from the responder
func (r *Remote) Close() error {
	return r.client.Close()
}
