// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close provides a mock function for releasing the client.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Oracle Mock --

// MockOracle mocks the schemas.Oracle interface.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Synthesize(ctx context.Context, task schemas.OracleTask, vars map[string]string) (json.RawMessage, error) {
	args := m.Called(ctx, task, vars)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	switch v := args.Get(0).(type) {
	case string:
		return json.RawMessage(v), args.Error(1)
	default:
		return args.Get(0).(json.RawMessage), args.Error(1)
	}
}

// -- Results Sink Mock --

// MockResultsSink mocks the schemas.ResultsSink interface.
type MockResultsSink struct {
	mock.Mock
}

func (m *MockResultsSink) Record(ctx context.Context, page schemas.PageResult) error {
	return m.Called(ctx, page).Error(0)
}

func (m *MockResultsSink) RecordPopup(ctx context.Context, report schemas.PopupReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockResultsSink) Flush(ctx context.Context, summary schemas.RunSummary) error {
	return m.Called(ctx, summary).Error(0)
}

// -- Authenticator Mock --

// MockAuthenticator mocks the schemas.Authenticator interface.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, page schemas.Page) error {
	return m.Called(ctx, page).Error(0)
}

// -- Recovery Mocks --

// MockRecoverer mocks the forced popup recovery used by the form pipeline.
type MockRecoverer struct {
	mock.Mock
}

func (m *MockRecoverer) ForceRecover(ctx context.Context, page schemas.Page) error {
	return m.Called(ctx, page).Error(0)
}

// MockFormSubmitter mocks the form pipeline as seen by popup recovery.
type MockFormSubmitter struct {
	mock.Mock
}

func (m *MockFormSubmitter) SubmitWithin(ctx context.Context, page schemas.Page, scope string) ([]schemas.SubmissionResult, error) {
	args := m.Called(ctx, page, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.SubmissionResult), args.Error(1)
}
