package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client for responders reachable over WebSocket.
// One connection carries every request; calls are serialised.
type WebSocketClient struct {
	name   string
	url    string
	conn   *websocket.Conn
	reqID  int32
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient dials url and returns a client for it
func NewWebSocketClient(name string, url string, logger *slog.Logger) (*WebSocketClient, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	client := &WebSocketClient{
		name:   name,
		url:    url,
		conn:   conn,
		logger: logger.With("component", "rpc", "transport", "websocket", "client", name),
	}

	client.logger.Info("created responder WebSocket client", "url", url)
	return client, nil
}

// Name returns the client identifier
func (c *WebSocketClient) Name() string {
	return c.name
}

// Initialize performs the protocol handshake
func (c *WebSocketClient) Initialize(ctx context.Context) (*InitializeResult, error) {
	return initialize(ctx, c, c.logger)
}

// Close disconnects from the responder
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}

	c.logger.Info("closed responder WebSocket client")
	return nil
}

// Call sends a JSON-RPC request over the WebSocket and waits for the
// response with the matching ID. A context deadline becomes the socket
// deadline; cancellation without a deadline is checked between frames.
func (c *WebSocketClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)
	defer func() {
		_ = c.conn.SetWriteDeadline(time.Time{})
		_ = c.conn.SetReadDeadline(time.Time{})
	}()

	// Unblock the read when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	reqID := int(atomic.AddInt32(&c.reqID, 1))
	if err := c.conn.WriteJSON(newRequest(reqID, method, params)); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	for {
		var response JSONRPCResponse
		if err := c.conn.ReadJSON(&response); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to read response: %w", err)
		}
		if response.ID != reqID {
			c.logger.Debug("skipping stale response", "id", response.ID, "want", reqID)
			continue
		}
		return decodeResponse(&response, result)
	}
}
