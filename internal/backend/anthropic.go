package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicContent represents a content block in a response
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Content      []AnthropicContent `json:"content"`
	Model        string             `json:"model"`
	StopReason   string             `json:"stop_reason"`
	StopSequence string             `json:"stop_sequence"`
	Usage        map[string]int64   `json:"usage"`
}

// Anthropic calls the Anthropic Messages API
type Anthropic struct {
	url       string
	apiKey    string
	model     string
	maxTokens int
	opts      HTTPOptions
}

// NewAnthropic creates an Anthropic backend. apiKey is usually ANTHROPIC_API_KEY.
func NewAnthropic(url, apiKey, model string, maxTokens int, opts HTTPOptions) *Anthropic {
	return &Anthropic{
		url:       url,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		opts:      opts.withDefaults(),
	}
}

// Name returns the backend identifier
func (a *Anthropic) Name() string {
	return "anthropic"
}

// Generate sends the recent exchange with the persona as the system prompt
func (a *Anthropic) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	if a.apiKey == "" {
		return session.Message{}, errors.New("ANTHROPIC_API_KEY not set")
	}

	history := chatHistory(snap, a.opts.MaxMessages)
	// the Messages API expects the exchange to open with a user turn
	for len(history) > 0 && history[0].Role != session.RoleUser {
		history = history[1:]
	}
	if len(history) == 0 {
		return session.Message{}, errors.New("no user message to respond to")
	}

	reqMessages := make([]AnthropicMessage, len(history))
	for i, msg := range history {
		reqMessages[i] = AnthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Text,
		}
	}

	reqBody := AnthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    persona.SystemPrompt(a.opts.Mode),
		Messages:  reqMessages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	body, err := doRequest(a.opts.Client, req)
	if err != nil {
		return session.Message{}, err
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return session.Message{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	recordUsage(ctx, a.opts.Meter, a.Name(), apiResp.Usage)

	for _, content := range apiResp.Content {
		if content.Type == "text" {
			return assistantReply(a.Name(), content.Text)
		}
	}
	return session.Message{}, fmt.Errorf("%w: empty response from Anthropic", ErrMalformedReply)
}
