package virality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"vidcaption/internal/config"
)

// ChatClient sends a single chat completion and returns the reply text
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is one system+user chat completion
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// ClientConfig captures the settings needed to talk to OpenRouter
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// ClientConfigFromConfiguration reads the llm.* settings
func ClientConfigFromConfiguration(cfg *config.Configuration) ClientConfig {
	return ClientConfig{
		APIKey:  cfg.GetLLMAPIKey(),
		BaseURL: cfg.GetLLMBaseURL(),
		Model:   cfg.GetLLMModel(),
		Referer: cfg.GetLLMSiteURL(),
		Title:   cfg.GetLLMSiteName(),
		Timeout: cfg.GetLLMTimeout(),
	}
}

// OpenRouterClient wraps the OpenRouter chat completion API
type OpenRouterClient struct {
	client openai.Client
	model  string
}

// NewOpenRouterClient creates a client. Retries are handled by callers.
func NewOpenRouterClient(cfg ClientConfig) (*OpenRouterClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm client: api key required (set OPEN_ROUTER_KEY)")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenRouterClient{
		client: openai.NewClient(opts...),
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

// Complete issues one chat completion
func (c *OpenRouterClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       c.model,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm request: empty choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("llm request: empty content (finish_reason=%q)", resp.Choices[0].FinishReason)
	}
	return content, nil
}
