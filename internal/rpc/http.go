package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
)

// HTTPClient implements Client for responders reachable over HTTP.
// Each call is a single POST to <baseURL>/rpc.
type HTTPClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	reqID      int32
	logger     *slog.Logger
	closed     atomic.Bool
}

// NewHTTPClient creates a new HTTP-based responder client
func NewHTTPClient(name string, baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	client := &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		// Request deadlines come from the caller's context
		httpClient: &http.Client{},
		logger:     logger.With("component", "rpc", "transport", "http", "client", name),
	}

	client.logger.Info("created responder HTTP client", "url", baseURL)
	return client, nil
}

// Name returns the client identifier
func (c *HTTPClient) Name() string {
	return c.name
}

// Initialize performs the protocol handshake
func (c *HTTPClient) Initialize(ctx context.Context) (*InitializeResult, error) {
	return initialize(ctx, c, c.logger)
}

// Close marks the client closed. HTTP holds no connection of its own.
func (c *HTTPClient) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.httpClient.CloseIdleConnections()
		c.logger.Info("closed responder HTTP client")
	}
	return nil
}

// Call sends an HTTP JSON-RPC request
func (c *HTTPClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	reqID := int(atomic.AddInt32(&c.reqID, 1))
	requestJSON, err := json.Marshal(newRequest(reqID, method, params))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(requestJSON))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(body))
	}

	var response JSONRPCResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if response.ID != reqID {
		return fmt.Errorf("response id %d does not match request id %d", response.ID, reqID)
	}

	c.logger.Debug("rpc call complete", "method", method, "id", reqID)
	return decodeResponse(&response, result)
}
