package queries

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned by provider constructors when no credential
// is present; callers skip that provider rather than failing the service.
var ErrMissingAPIKey = errors.New("provider api key is not set")

// chatClient is the slice of the go-openai client used here, kept as an
// interface so tests can substitute a fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider serves any OpenAI-compatible chat-completions endpoint
// (OpenAI itself, Groq, etc) via a configurable base URL.
type OpenAIProvider struct {
	name   string
	client chatClient
	model  string
}

// OpenAIConfig carries the knobs for one OpenAI-compatible provider entry.
type OpenAIConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAI constructs a provider against an OpenAI-compatible endpoint.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Name, ErrMissingAPIKey)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		name:   cfg.Name,
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// newOpenAIWithClient wires a custom client, for tests.
func newOpenAIWithClient(name string, client chatClient, model string) *OpenAIProvider {
	return &OpenAIProvider{name: name, client: client, model: model}
}

// Name identifies the provider in logs and metrics.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete issues one chat completion and extracts the message content from
// the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   256,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s completion: no choices returned", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}
