package ai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT3Dot5Turbo

// OpenAITransport calls any OpenAI-compatible chat completions endpoint
type OpenAITransport struct {
	client      *openai.Client
	model       string
	temperature float32
}

// Ensure OpenAITransport implements Transport
var _ Transport = (*OpenAITransport)(nil)

// NewOpenAITransport creates a new OpenAI-compatible transport
func NewOpenAITransport(cfg TransportConfig) *OpenAITransport {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAITransport{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: float32(cfg.Temperature),
	}
}

// Call sends one system/user exchange and returns the assistant text
func (o *OpenAITransport) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: o.temperature,
	})
	if err != nil {
		te := &TransportError{Provider: "openai", Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			te.StatusCode = apiErr.HTTPStatusCode
		}
		return "", te
	}

	if len(resp.Choices) == 0 {
		return "", &TransportError{Provider: "openai", Err: errors.New("response contained no choices")}
	}

	return resp.Choices[0].Message.Content, nil
}
