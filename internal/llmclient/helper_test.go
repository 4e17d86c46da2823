package llmclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// getValidOracleConfig returns a valid OracleConfig for testing purposes.
func getValidOracleConfig(provider config.LLMProvider) config.OracleConfig {
	return config.OracleConfig{
		Provider:    provider,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
		MaxTokens:   256,
		MaxRetries:  2,
		RateLimit:   1,
		Burst:       1,
	}
}

// createTestRequest provides a standard generation request structure.
func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Temperature:  0.2,
	}
}

// capturedRequest records what a fake provider endpoint received.
type capturedRequest struct {
	Path string
	Body string
}

// fakeProvider serves a canned JSON body and records every request.
func fakeProvider(t *testing.T, status int, body string) (*httptest.Server, *atomic.Pointer[capturedRequest]) {
	t.Helper()
	var last atomic.Pointer[capturedRequest]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		last.Store(&capturedRequest{Path: r.URL.Path, Body: string(raw)})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &last
}
