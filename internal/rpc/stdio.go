package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// StdioClient implements Client for a local responder process speaking
// newline-delimited JSON-RPC on stdin/stdout
type StdioClient struct {
	name      string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	responses chan JSONRPCResponse
	done      chan struct{}
	reqID     int32
	logger    *slog.Logger

	mu        sync.Mutex // serialises requests
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewStdioClient starts argv as a subprocess and returns a client for it
func NewStdioClient(name string, argv []string, logger *slog.Logger) (*StdioClient, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if len(argv) == 0 {
		return nil, errors.New("empty responder command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start responder process: %w", err)
	}

	client := &StdioClient{
		name:      name,
		cmd:       cmd,
		stdin:     stdin,
		responses: make(chan JSONRPCResponse, 16),
		done:      make(chan struct{}),
		logger:    logger.With("component", "rpc", "transport", "stdio", "client", name),
	}

	go client.readLoop(stdout)
	go client.logStderr(stderr)

	client.logger.Info("started responder process", "command", argv[0])
	return client, nil
}

// Name returns the client identifier
func (c *StdioClient) Name() string {
	return c.name
}

// Initialize performs the protocol handshake
func (c *StdioClient) Initialize(ctx context.Context) (*InitializeResult, error) {
	return initialize(ctx, c, c.logger)
}

// Call sends a request and waits for the response with the matching ID.
// Responses to earlier, abandoned requests are skipped.
func (c *StdioClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClientClosed
	}

	reqID := int(atomic.AddInt32(&c.reqID, 1))
	requestJSON, err := json.Marshal(newRequest(reqID, method, params))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := c.stdin.Write(append(requestJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	for {
		select {
		case response, ok := <-c.responses:
			if !ok {
				return errors.New("EOF from responder")
			}
			if response.ID != reqID {
				c.logger.Debug("skipping stale response", "id", response.ID, "want", reqID)
				continue
			}
			return decodeResponse(&response, result)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the responder process. Safe to call multiple times.
func (c *StdioClient) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.stdin.Close()
		if c.cmd.Process != nil {
			if err := c.cmd.Process.Kill(); err != nil {
				c.logger.Warn("failed to kill responder process", "error", err)
			}
			_ = c.cmd.Wait() // reap
		}
		c.logger.Info("closed responder process")
	})
	return nil
}

// readLoop decodes one response per stdout line until EOF
func (c *StdioClient) readLoop(stdout io.Reader) {
	defer close(c.responses)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var response JSONRPCResponse
		if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
			c.logger.Warn("ignoring malformed responder output", "error", err)
			continue
		}
		select {
		case c.responses <- response:
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil && !c.closed.Load() {
		c.logger.Error("error reading responder output", "error", err)
	}
}

// logStderr logs stderr output from the responder process
func (c *StdioClient) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Warn("responder stderr", "message", scanner.Text())
	}
}
