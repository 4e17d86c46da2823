// internal/oracle/oracle.go
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/llmclient"
	"github.com/xkilldash9x/scalpel-explore/internal/llmutil"
)

// ErrOracleDegraded marks a task whose replies stayed unusable after every
// retry. Synthesize logs it and returns an empty result instead.
var ErrOracleDegraded = errors.New("oracle degraded to empty result")

// Service is an Oracle that owns a transport.
type Service interface {
	schemas.Oracle
	Close() error
}

// LLMOracle renders catalog prompts, sends them through an LLMClient and
// extracts the fenced data block from the reply.
type LLMOracle struct {
	client  schemas.LLMClient
	catalog *Catalog
	cfg     config.OracleConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates an oracle over the given client using the embedded catalog.
func New(client schemas.LLMClient, cfg config.OracleConfig, logger *zap.Logger) (*LLMOracle, error) {
	if client == nil {
		return nil, errors.New("oracle requires a non-nil LLM client")
	}
	catalog, err := LoadCatalog(logger)
	if err != nil {
		return nil, err
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &LLMOracle{
		client:  client,
		catalog: catalog,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("oracle"),
	}, nil
}

// NewFromConfig builds the oracle the configuration asks for. The stub
// provider needs no transport and yields a Stub.
func NewFromConfig(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (Service, error) {
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if client == nil {
		logger.Info("Using the built-in stub oracle.")
		return NewStub(), nil
	}
	o, err := New(client, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return o, nil
}

// Synthesize implements schemas.Oracle.
func (o *LLMOracle) Synthesize(ctx context.Context, task schemas.OracleTask, vars map[string]string) (json.RawMessage, error) {
	req, err := o.catalog.Render(task, vars)
	if err != nil {
		return nil, err
	}
	req.Temperature = o.cfg.Temperature
	req.MaxTokens = o.cfg.MaxTokens

	attempts := o.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		reply, err := o.client.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			o.logger.Warn("Oracle call failed.", zap.String("task", string(task)), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		data, err := parseReply(task, reply)
		if err == nil {
			o.logger.Debug("Oracle reply parsed.", zap.String("task", string(task)), zap.Int("attempt", i+1), zap.Int("bytes", len(data)))
			return data, nil
		}
		lastErr = err
		o.logger.Warn("Oracle reply malformed.", zap.String("task", string(task)), zap.Int("attempt", i+1), zap.Error(err))
	}

	o.logger.Error("Oracle exhausted retries.",
		zap.String("task", string(task)),
		zap.Int("attempts", attempts),
		zap.Error(fmt.Errorf("%w: %v", ErrOracleDegraded, lastErr)),
	)
	return Empty(task), nil
}

// Close releases the transport.
func (o *LLMOracle) Close() error {
	return o.client.Close()
}

// Empty is the degraded result for a task.
func Empty(task schemas.OracleTask) json.RawMessage {
	if task == schemas.TaskElementGeneration {
		return json.RawMessage(`[]`)
	}
	return json.RawMessage(`{}`)
}

// parseReply reduces a raw reply to the task's data shape: a JSON array of
// selectors for element generation, a JSON object for everything else.
func parseReply(task schemas.OracleTask, reply string) (json.RawMessage, error) {
	if task == schemas.TaskElementGeneration {
		selectors, err := llmutil.ParseSelectorList(reply)
		if err != nil {
			return nil, err
		}
		return json.Marshal(selectors)
	}

	raw, err := llmutil.ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object for %s", llmutil.ErrNoJSON, task)
	}
	return raw, nil
}
