// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

// GoogleClient implements schemas.LLMClient for Google Gemini models through the genai SDK.
type GoogleClient struct {
	client *genai.Client
	config config.OracleConfig
	logger *zap.Logger
}

// NewGoogleClient initializes the SDK client. A non-empty Endpoint overrides
// the API base URL.
func NewGoogleClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	if cfg.APITimeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleClient{
		client: client,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the prompts to the model and returns the concatenated text parts.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if maxTokens := pickMaxTokens(req, c.config); maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(maxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini API returned no candidates")
	}

	candidate := resp.Candidates[0]
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(startTime))}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	c.logger.Debug("LLM generation complete (Gemini).", fields...)

	return b.String(), nil
}

// Close is a no-op; the genai client holds no resources needing release.
func (c *GoogleClient) Close() error { return nil }

func pickMaxTokens(req schemas.GenerationRequest, cfg config.OracleConfig) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return cfg.MaxTokens
}
