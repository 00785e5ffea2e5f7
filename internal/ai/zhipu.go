package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultZhipuBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	defaultZhipuModel   = "glm-4"
)

// ZhipuTransport calls the Zhipu GLM chat completions API
type ZhipuTransport struct {
	client      *resty.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
}

// Ensure ZhipuTransport implements Transport
var _ Transport = (*ZhipuTransport)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewZhipuTransport creates a new Zhipu transport
func NewZhipuTransport(cfg TransportConfig) *ZhipuTransport {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultZhipuBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultZhipuModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &ZhipuTransport{
		client:      resty.New().SetTimeout(timeout),
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		temperature: cfg.Temperature,
	}
}

// Call sends one system/user exchange and returns the assistant text
func (z *ZhipuTransport) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var result chatResponse

	resp, err := z.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(z.apiKey).
		SetBody(chatRequest{
			Model: z.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Temperature: z.temperature,
		}).
		SetResult(&result).
		Post(z.baseURL + "/chat/completions")

	if err != nil {
		return "", &TransportError{Provider: "zhipu", Err: err}
	}

	if resp.IsError() {
		msg := strings.TrimSpace(string(resp.Body()))
		var apiErr chatResponse
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &TransportError{Provider: "zhipu", StatusCode: resp.StatusCode(), Err: errors.New(msg)}
	}

	if len(result.Choices) == 0 {
		return "", &TransportError{Provider: "zhipu", StatusCode: resp.StatusCode(), Err: errors.New("response contained no choices")}
	}

	return result.Choices[0].Message.Content, nil
}
