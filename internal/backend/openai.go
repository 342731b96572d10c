package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"TherapyBuddy/internal/persona"
	"TherapyBuddy/internal/session"
)

// OpenAI calls an OpenAI-compatible chat completions API. The same type
// serves Grok through a different base URL.
type OpenAI struct {
	name   string
	model  string
	apiKey string
	client *openai.Client
	opts   HTTPOptions
}

// NewOpenAI creates an OpenAI-compatible backend. An empty baseURL uses the
// library default (api.openai.com).
func NewOpenAI(name, apiKey, baseURL, model string, opts HTTPOptions) *OpenAI {
	opts = opts.withDefaults()

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = opts.Client

	return &OpenAI{
		name:   name,
		model:  model,
		apiKey: apiKey,
		client: openai.NewClientWithConfig(config),
		opts:   opts,
	}
}

// Name returns the backend identifier
func (o *OpenAI) Name() string {
	return o.name
}

// Generate requests a single chat completion
func (o *OpenAI) Generate(ctx context.Context, snap session.Snapshot) (session.Message, error) {
	if o.apiKey == "" {
		return session.Message{}, errors.New("API key not set for " + o.name)
	}

	history := chatHistory(snap, o.opts.MaxMessages)
	reqMessages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	reqMessages = append(reqMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: persona.SystemPrompt(o.opts.Mode),
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		reqMessages = append(reqMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: reqMessages,
	})
	if err != nil {
		return session.Message{}, fmt.Errorf("%s chat completion failed: %w", o.name, err)
	}

	recordUsage(ctx, o.opts.Meter, o.name, map[string]int64{
		"input_tokens":  int64(resp.Usage.PromptTokens),
		"output_tokens": int64(resp.Usage.CompletionTokens),
	})

	if len(resp.Choices) == 0 {
		return session.Message{}, fmt.Errorf("%w: empty response from %s", ErrMalformedReply, o.name)
	}
	return assistantReply(o.name, resp.Choices[0].Message.Content)
}
