package rpc

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSON-RPC 2.0 protocol types for talking to reply responders

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Always "2.0"
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"` // Always "2.0"
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Responder methods
const (
	MethodInitialize = "initialize"
	MethodReply      = "conversation/reply"
)

// ProtocolVersion is sent in the initialize handshake
const ProtocolVersion = "2025-01-01"

// InitializeParams represents parameters for initialize request
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientInfo contains client identification
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult represents result from initialize request
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// ServerInfo contains server identification
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// WireMessage is a transcript message as sent to a responder
type WireMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplyParams represents parameters for conversation/reply request
type ReplyParams struct {
	SessionID string        `json:"session_id"`
	Mode      string        `json:"mode,omitempty"`
	Messages  []WireMessage `json:"messages"`
}

// ReplyResult represents result from conversation/reply request
type ReplyResult struct {
	Text string `json:"text"`
}

// newRequest builds a JSON-RPC 2.0 request envelope
func newRequest(id int, method string, params interface{}) JSONRPCRequest {
	return JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// decodeResponse checks a response for an RPC error and unmarshals its result
func decodeResponse(response *JSONRPCResponse, result interface{}) error {
	if response.Error != nil {
		return response.Error
	}
	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}
