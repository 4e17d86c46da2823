// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

// OpenAIClient implements schemas.LLMClient for OpenAI and compatible chat
// completion endpoints.
type OpenAIClient struct {
	client *openai.Client
	config config.OracleConfig
	logger *zap.Logger
}

// NewOpenAIClient builds a client. Endpoint, when set, replaces the default base URL.
func NewOpenAIClient(cfg config.OracleConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if endpoint := strings.TrimRight(cfg.Endpoint, "/"); endpoint != "" {
		oc.BaseURL = endpoint
	}
	if cfg.APITimeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends a system and user message pair and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   pickMaxTokens(req, c.config),
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	c.logger.Debug("LLM generation complete (OpenAI).",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op.
func (c *OpenAIClient) Close() error { return nil }
