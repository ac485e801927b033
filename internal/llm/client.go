// internal/llm/client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// ModelClient produces the raw reply text for a prompt
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the endpoint and sampling settings
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// SystemPrompt replaces the built-in instruction when set
	SystemPrompt string
}

// ErrNoAPIKey is returned by NewOpenAIClient when no key is configured
var ErrNoAPIKey = errors.New("model API key not set")

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
type OpenAIClient struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewOpenAIClient creates a client for cfg
func NewOpenAIClient(cfg Config, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemInstruction
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger = logger.With("component", "llm")
	logger.Info("Initializing model client", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Generate implements ModelClient. The reply is requested in JSON mode.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	c.logger.Debug("Generating reply", "model", c.cfg.Model, "prompt_length", len(prompt))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("Chat completion failed", "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("Received reply",
		"finish_reason", resp.Choices[0].FinishReason,
		"length", len(content))
	return content, nil
}
