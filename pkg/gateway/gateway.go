// Package gateway resolves logical model references and dispatches
// canonical chat requests to the right provider adapter with a bounded
// timeout and classified failures.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/avrebarra/lumora/internal/metrics"
	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/avrebarra/lumora/pkg/secrets"
	"github.com/rs/zerolog"
)

// Per-provider dispatch timeouts, overridable per descriptor.
var defaultTimeouts = map[string]time.Duration{
	llm.FamilyAnthropic: 120 * time.Second,
	llm.FamilyOpenAI:    120 * time.Second,
	llm.FamilyGemini:    90 * time.Second,
}

const fallbackTimeout = 60 * time.Second

// Gateway is the single entry point for outbound model calls.
type Gateway struct {
	catalog *catalog.Catalog
	secrets secrets.Provider
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Config holds gateway dependencies.
type Config struct {
	Catalog *catalog.Catalog
	Secrets secrets.Provider
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// New creates a gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Secrets == nil {
		return nil, errors.New("secret provider is required")
	}
	return &Gateway{
		catalog: cfg.Catalog,
		secrets: cfg.Secrets,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Resolve maps a logical model id (or "default") to a descriptor using the
// current catalog snapshot.
func (g *Gateway) Resolve(idOrDefault string) (catalog.Descriptor, error) {
	return g.catalog.Snapshot().Resolve(idOrDefault)
}

// Dispatch sends one canonical chat request to the descriptor's backend.
// All failures come back classified; a deadline expiry is a Timeout, never
// a panic, and the ledger is untouched by this layer.
func (g *Gateway) Dispatch(ctx context.Context, req llm.ChatRequest, desc catalog.Descriptor) (*llm.ChatResponse, error) {
	if desc.Disabled {
		// Resolve refuses disabled descriptors; this guard catches callers
		// holding a stale descriptor across a catalog reload.
		return nil, &llm.Error{Kind: llm.KindModelDisabled, Message: desc.AdminMessage}
	}

	credential, err := g.secrets.GetDecryptedCredential(desc.Provider)
	if err != nil {
		var notConfigured *secrets.ErrNotConfigured
		if errors.As(err, &notConfigured) {
			return nil, llm.Errorf(llm.KindConfigurationError, "no credential for provider %s", desc.Provider)
		}
		return nil, llm.Errorf(llm.KindConfigurationError, "credential lookup failed: %v", err)
	}

	adapter, err := llm.AdapterFor(desc.Provider, llm.AdapterOptions{Endpoint: desc.Endpoint})
	if err != nil {
		return nil, err
	}

	if req.Temperature == 0 && desc.DefaultTemperature > 0 {
		req.Temperature = desc.DefaultTemperature
	}
	if req.MaxTokens == 0 && desc.DefaultMaxTokens > 0 {
		req.MaxTokens = desc.DefaultMaxTokens
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeoutFor(desc))
	defer cancel()

	start := time.Now()
	response, err := adapter.Send(callCtx, req, credential, desc.BackendModel)
	elapsed := time.Since(start)

	if g.metrics != nil {
		g.metrics.DispatchDuration.WithLabelValues(desc.Provider).Observe(elapsed.Seconds())
	}

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			err = llm.Errorf(llm.KindTimeout, "dispatch to %s timed out after %s", desc.ID, g.timeoutFor(desc))
		}
		kind := llm.KindOf(err)
		if g.metrics != nil {
			g.metrics.DispatchTotal.WithLabelValues(desc.Provider, "error").Inc()
			g.metrics.DispatchErrors.WithLabelValues(desc.Provider, string(kind)).Inc()
		}
		g.logger.Warn().
			Str("model_id", desc.ID).
			Str("provider", desc.Provider).
			Str("kind", string(kind)).
			Dur("elapsed", elapsed).
			Msg("Dispatch failed")
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.DispatchTotal.WithLabelValues(desc.Provider, "success").Inc()
	}
	g.logger.Debug().
		Str("model_id", desc.ID).
		Str("provider", desc.Provider).
		Int("output_tokens", response.Usage.OutputTokens).
		Dur("elapsed", elapsed).
		Msg("Dispatch completed")
	return response, nil
}

func (g *Gateway) timeoutFor(desc catalog.Descriptor) time.Duration {
	if desc.TimeoutSeconds > 0 {
		return time.Duration(desc.TimeoutSeconds) * time.Second
	}
	if d, ok := defaultTimeouts[desc.Provider]; ok {
		return d
	}
	return fallbackTimeout
}
