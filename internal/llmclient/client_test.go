package llmclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

// -- Factory --

func TestNewClient(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	t.Run("stub has no transport", func(t *testing.T) {
		client, err := NewClient(ctx, getValidOracleConfig(config.ProviderStub), logger)
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("known providers", func(t *testing.T) {
		for provider, want := range map[config.LLMProvider]interface{}{
			config.ProviderGemini:    &GoogleClient{},
			config.ProviderOpenAI:    &OpenAIClient{},
			config.ProviderAnthropic: &AnthropicClient{},
		} {
			client, err := NewClient(ctx, getValidOracleConfig(provider), logger)
			require.NoError(t, err, provider)
			assert.IsType(t, want, client, provider)
			assert.NoError(t, client.Close())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient(ctx, getValidOracleConfig("palm"), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})

	t.Run("missing key", func(t *testing.T) {
		for _, provider := range []config.LLMProvider{config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic} {
			cfg := getValidOracleConfig(provider)
			cfg.APIKey = ""
			_, err := NewClient(ctx, cfg, logger)
			assert.Error(t, err, provider)
		}
	})
}

// -- Providers --

func TestOpenAIClient_Generate(t *testing.T) {
	server, last := fakeProvider(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
	}`)
	logger, logs := setupTestLogger(t)

	cfg := getValidOracleConfig(config.ProviderOpenAI)
	cfg.Endpoint = server.URL + "/"
	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	req := last.Load()
	require.NotNil(t, req)
	assert.Equal(t, "/chat/completions", req.Path)
	assert.Contains(t, req.Body, `"role":"system"`)
	assert.Contains(t, req.Body, "User query.")
	assert.Equal(t, 1, logs.FilterMessage("LLM generation complete (OpenAI).").Len())
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	server, _ := fakeProvider(t, http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`)
	logger, _ := setupTestLogger(t)

	cfg := getValidOracleConfig(config.ProviderOpenAI)
	cfg.Endpoint = server.URL
	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestAnthropicClient_Generate(t *testing.T) {
	server, last := fakeProvider(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "test-model",
		"content": [{"type": "text", "text": "bonjour"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 5, "output_tokens": 2}
	}`)
	logger, _ := setupTestLogger(t)

	cfg := getValidOracleConfig(config.ProviderAnthropic)
	cfg.Endpoint = server.URL
	client, err := NewAnthropicClient(cfg, logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)

	req := last.Load()
	require.NotNil(t, req)
	assert.Contains(t, req.Path, "/v1/messages")
	assert.Contains(t, req.Body, "System prompt instructions.")
	assert.Contains(t, req.Body, "max_tokens")
}

func TestGoogleClient_Generate(t *testing.T) {
	server, last := fakeProvider(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "hal"}, {"text": "lo"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6}
	}`)
	logger, _ := setupTestLogger(t)

	cfg := getValidOracleConfig(config.ProviderGemini)
	cfg.Endpoint = server.URL
	client, err := NewGoogleClient(context.Background(), cfg, logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "hallo", out)

	req := last.Load()
	require.NotNil(t, req)
	assert.Contains(t, req.Path, "test-model:generateContent")
	assert.Contains(t, req.Body, "System prompt instructions.")
}

func TestGoogleClient_NoCandidates(t *testing.T) {
	server, _ := fakeProvider(t, http.StatusOK, `{"candidates": []}`)
	logger, _ := setupTestLogger(t)

	cfg := getValidOracleConfig(config.ProviderGemini)
	cfg.Endpoint = server.URL
	client, err := NewGoogleClient(context.Background(), cfg, logger)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}
