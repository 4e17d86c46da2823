package oracle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
)

const loginForm = `<form id="login">
  <input name="email" type="email">
  <input name="password" type="password" required>
  <input name="token" type="hidden" value="abc">
  <textarea name="bio"></textarea>
  <button type="submit">Sign in</button>
  <button type="button">Cancel</button>
</form>`

func TestStub_QueuedRepliesRepeatLast(t *testing.T) {
	s := NewStub()
	s.Queue(schemas.TaskFormFix, `{"a":"1"}`, `{"a":"2"}`)
	ctx := context.Background()

	for _, want := range []string{`{"a":"1"}`, `{"a":"2"}`, `{"a":"2"}`} {
		got, err := s.Synthesize(ctx, schemas.TaskFormFix, map[string]string{"last_data": "{}"})
		require.NoError(t, err)
		assert.JSONEq(t, want, string(got))
	}
	assert.Equal(t, 3, s.CallCount(schemas.TaskFormFix))
	assert.Zero(t, s.CallCount(schemas.TaskFormFill))
}

func TestStub_RecordsVarsCopy(t *testing.T) {
	s := NewStub()
	vars := map[string]string{"test_object_information": "x"}
	_, err := s.Synthesize(context.Background(), schemas.TaskElementGeneration, vars)
	require.NoError(t, err)
	vars["test_object_information"] = "mutated"

	calls := s.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "x", calls[0].Vars["test_object_information"])
}

func TestStub_ValuesOnly(t *testing.T) {
	fields, err := json.Marshal([]FieldInfo{
		{Name: "email", Type: "email"},
		{Name: "user_phone", Type: "text"},
		{Name: "agree", Type: "checkbox"},
		{Name: "nickname", Type: "text"},
	})
	require.NoError(t, err)

	raw, err := NewStub().Synthesize(context.Background(), schemas.TaskFormFillValuesOnly, map[string]string{"form_fields_info": string(fields)})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]string{
		"email":      "test@example.com",
		"user_phone": "13800138000",
		"agree":      "true",
		"nickname":   "testuser",
	}, got)
}

func TestStub_FillWithSubmit(t *testing.T) {
	raw, err := NewStub().Synthesize(context.Background(), schemas.TaskFormFillWithSubmit, map[string]string{"form_html": loginForm})
	require.NoError(t, err)

	var reply struct {
		FormData          map[string]string `json:"formData"`
		SubmitSelectors   []string          `json:"submitSelectors"`
		RecommendedSubmit string            `json:"recommendedSubmitSelector"`
		SubmitStrategy    string            `json:"submitStrategy"`
	}
	require.NoError(t, json.Unmarshal(raw, &reply))

	assert.Equal(t, map[string]string{
		`input[name="email"]`:    "test@example.com",
		`input[name="password"]`: "TestPass123!",
		`textarea[name="bio"]`:   "Automated exploration test input.",
	}, reply.FormData, "hidden inputs and buttons are not filled")
	require.Len(t, reply.SubmitSelectors, 1)
	assert.Equal(t, reply.SubmitSelectors[0], reply.RecommendedSubmit)
	assert.Equal(t, "button_click", reply.SubmitStrategy)

	doc, err := dom.ParseString(loginForm)
	require.NoError(t, err)
	n, err := dom.Count(doc, reply.RecommendedSubmit)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the recommended submit selector resolves in the form")
}

func TestStub_FillWithoutSubmitUsesFormSubmit(t *testing.T) {
	raw, err := NewStub().Synthesize(context.Background(), schemas.TaskFormFillWithSubmit, map[string]string{
		"form_html": `<form><input name="q"></form>`,
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"submitStrategy":"form_submit"`)
}

func TestStub_FormFixFillsEmptyValues(t *testing.T) {
	raw, err := NewStub().Synthesize(context.Background(), schemas.TaskFormFix, map[string]string{
		"form_html":      loginForm,
		"last_data":      `{"input[name=\"email\"]":"kept@example.com","input[name=\"password\"]":""}`,
		"error_feedback": "Password is required",
	})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "kept@example.com", got[`input[name="email"]`])
	assert.Equal(t, "TestPass123!", got[`input[name="password"]`])
}

func TestStub_UnknownTaskAndCancellation(t *testing.T) {
	s := NewStub()
	_, err := s.Synthesize(context.Background(), "summarize", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Synthesize(ctx, schemas.TaskFormFill, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
