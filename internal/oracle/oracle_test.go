package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/mocks"
)

func testOracleConfig() config.OracleConfig {
	return config.OracleConfig{
		Provider:    config.ProviderGemini,
		Model:       "test-model",
		Temperature: 0.3,
		MaxTokens:   512,
		MaxRetries:  2,
	}
}

func setupOracle(t *testing.T) (*LLMOracle, *mocks.MockLLMClient, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	client := new(mocks.MockLLMClient)
	o, err := New(client, testOracleConfig(), zap.New(core))
	require.NoError(t, err)
	return o, client, logs
}

// -- Catalog --

func TestCatalog_CoversEveryTask(t *testing.T) {
	c, err := LoadCatalog(zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []schemas.OracleTask{
		schemas.TaskElementGeneration,
		schemas.TaskFormFill,
		schemas.TaskFormFillValuesOnly,
		schemas.TaskFormFillWithSubmit,
		schemas.TaskFormFix,
	}, c.Tasks())
}

func TestCatalog_Render(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c, err := LoadCatalog(zap.New(core))
	require.NoError(t, err)

	req, err := c.Render(schemas.TaskFormFix, map[string]string{
		"form_html": `<form id="f"><input name="email"></form>`,
		"last_data": `{"input[name=\"email\"]":"{error_feedback}"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, req.UserPrompt, `<form id="f">`)
	assert.Contains(t, req.UserPrompt, `"{error_feedback}"}`, "substituted values are not expanded again")
	assert.Contains(t, req.SystemPrompt, `"selector1": "value1"`, "JSON examples are not placeholders")

	entries := logs.FilterMessage("Template variables were not provided.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"error_feedback"}, entries[0].ContextMap()["missing"])

	_, err = c.Render("summarize", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("form_fix: [unclosed"), zap.NewNop())
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("form_fix:\n  system: \"\"\n"), zap.NewNop())
	assert.Error(t, err)
}

// -- LLMOracle --

func TestLLMOracle_ParsesFencedObject(t *testing.T) {
	o, client, _ := setupOracle(t)
	client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Temperature == 0.3 && req.MaxTokens == 512
	})).Return("Here you go:\n```json\n{\"email\": \"a@b.c\"}\n```", nil).Once()

	data, err := o.Synthesize(context.Background(), schemas.TaskFormFillValuesOnly, map[string]string{"form_fields_info": "[]"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"a@b.c"}`, string(data))
	client.AssertExpectations(t)
}

func TestLLMOracle_SelectorList(t *testing.T) {
	o, client, _ := setupOracle(t)
	client.On("Generate", mock.Anything, mock.Anything).Return("```json\n\"#buy, .nav > a\"\n```", nil).Once()

	data, err := o.Synthesize(context.Background(), schemas.TaskElementGeneration, map[string]string{"test_object_information": "shop"})
	require.NoError(t, err)

	var selectors []string
	require.NoError(t, json.Unmarshal(data, &selectors))
	assert.Equal(t, []string{"#buy", ".nav > a"}, selectors)
}

func TestLLMOracle_RetriesMalformedThenSucceeds(t *testing.T) {
	o, client, logs := setupOracle(t)
	client.On("Generate", mock.Anything, mock.Anything).Return("I am not sure.", nil).Once()
	client.On("Generate", mock.Anything, mock.Anything).Return(`["not", "an", "object"]`, nil).Once()
	client.On("Generate", mock.Anything, mock.Anything).Return(`{"ok": "yes"}`, nil).Once()

	data, err := o.Synthesize(context.Background(), schemas.TaskFormFill, map[string]string{"form_html": "<form></form>"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":"yes"}`, string(data))
	assert.Equal(t, 2, logs.FilterMessage("Oracle reply malformed.").Len())
	client.AssertNumberOfCalls(t, "Generate", 3)
}

func TestLLMOracle_DegradesAfterRetries(t *testing.T) {
	o, client, logs := setupOracle(t)
	client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("503 unavailable"))

	data, err := o.Synthesize(context.Background(), schemas.TaskFormFillWithSubmit, map[string]string{"form_html": "<form></form>"})
	require.NoError(t, err, "a degraded oracle returns empty data, not an error")
	assert.JSONEq(t, `{}`, string(data))
	client.AssertNumberOfCalls(t, "Generate", 3)

	entries := logs.FilterMessage("Oracle exhausted retries.").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], ErrOracleDegraded.Error())

	client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("503 unavailable"))
	data, err = o.Synthesize(context.Background(), schemas.TaskElementGeneration, map[string]string{"test_object_information": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestLLMOracle_ContextCancelled(t *testing.T) {
	o, client, _ := setupOracle(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Synthesize(ctx, schemas.TaskFormFill, map[string]string{"form_html": "<form></form>"})
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestLLMOracle_UnknownTask(t *testing.T) {
	o, _, _ := setupOracle(t)
	_, err := o.Synthesize(context.Background(), "translate", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, testOracleConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestNewFromConfig_Stub(t *testing.T) {
	svc, err := NewFromConfig(context.Background(), config.OracleConfig{Provider: config.ProviderStub}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Stub{}, svc)
	assert.NoError(t, svc.Close())
}

func TestLLMOracle_Close(t *testing.T) {
	o, client, _ := setupOracle(t)
	client.On("Close").Return(nil).Once()
	assert.NoError(t, o.Close())
	client.AssertExpectations(t)
}
