package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama talks to a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	opts    HTTPOptions
}

// NewOllama creates an Ollama backend. baseURL is e.g. "http://localhost:11434".
func NewOllama(baseURL, model string, opts HTTPOptions) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		opts:    opts.withDefaults(),
	}
}

// Name returns the backend identifier
func (o *Ollama) Name() string {
	return "ollama"
}

// Model returns the configured model specification
func (o *Ollama) Model() string {
	return o.model
}

// Generate calls /api/chat without streaming
func (o *Ollama) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	history := chatHistory(snap, o.opts.MaxMessages)
	reqMessages := make([]map[string]string, 0, len(history)+1)
	reqMessages = append(reqMessages, map[string]string{
		"role":    string(session.RoleSystem),
		"content": persona.SystemPrompt(o.opts.Mode),
	})
	for _, msg := range history {
		reqMessages = append(reqMessages, map[string]string{
			"role":    string(msg.Role),
			"content": msg.Text,
		})
	}

	reqBody := OllamaRequest{
		Model:    o.model,
		Messages: reqMessages,
		Stream:   false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	body, err := doRequest(o.opts.Client, req)
	if err != nil {
		return session.Message{}, err
	}

	var apiResp OllamaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return session.Message{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	recordUsage(ctx, o.opts.Meter, o.Name(), map[string]int64{
		"input_tokens":  apiResp.PromptEvalCount,
		"output_tokens": apiResp.EvalCount,
	})

	return assistantReply(o.Name(), apiResp.Message.Content)
}

// ListModels fetches the list of available Ollama models
func (o *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := doRequest(o.opts.Client, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list models (is Ollama running?): %w", err)
	}

	var tagsResp OllamaTagsResponse
	if err := json.Unmarshal(body, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return tagsResp.Models, nil
}

// doRequest sends req and returns the body of a 200 response
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return body, nil
}
