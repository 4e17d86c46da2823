// internal/llmclient/anthropic_client.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements schemas.LLMClient for the Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	config config.OracleConfig
	logger *zap.Logger
}

// NewAnthropicClient builds a client. Endpoint, when set, replaces the default base URL.
func NewAnthropicClient(cfg config.OracleConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API Key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		client: &client,
		config: cfg,
		logger: logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends the prompts and returns the first text block of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	maxTokens := pickMaxTokens(req, c.config)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	startTime := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			c.logger.Debug("LLM generation complete (Anthropic).",
				zap.Duration("duration", time.Since(startTime)),
				zap.Int64("prompt_tokens", resp.Usage.InputTokens),
				zap.Int64("completion_tokens", resp.Usage.OutputTokens),
			)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from Anthropic")
}

// Close is a no-op.
func (c *AnthropicClient) Close() error { return nil }
