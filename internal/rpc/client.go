package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrClientClosed is returned by calls on a closed client
var ErrClientClosed = errors.New("client is closed")

// Client represents a connection to a reply responder
type Client interface {
	// Initialize performs the protocol handshake
	Initialize(ctx context.Context) (*InitializeResult, error)

	// Call invokes method and decodes the result into result
	Call(ctx context.Context, method string, params interface{}, result interface{}) error

	// Close disconnects from the responder
	Close() error

	// Name returns the client identifier
	Name() string
}

// Dial creates a client for target, picking the transport from its form:
// ws:// and wss:// use WebSocket, http:// and https:// use HTTP, and anything
// else is a command line started as a stdio subprocess.
func Dial(name, target string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return nil, errors.New("empty responder target")
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		return NewWebSocketClient(name, target, logger)
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return NewHTTPClient(name, target, logger)
	default:
		argv := strings.Fields(target)
		return NewStdioClient(name, argv, logger)
	}
}

// initialize runs the handshake shared by all transports
func initialize(ctx context.Context, c Client, logger *slog.Logger) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo: ClientInfo{
			Name:    "therapybuddy",
			Version: "1.0.0",
		},
	}

	var result InitializeResult
	if err := c.Call(ctx, MethodInitialize, params, &result); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	logger.Info("responder initialized",
		"client", c.Name(),
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return &result, nil
}
