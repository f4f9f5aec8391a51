// Package fallback tries candidate models in priority order until one
// yields an artifact, classifying each failure to decide whether to
// advance or abort the whole pass.
package fallback

import (
	"context"
	"fmt"

	"github.com/avrebarra/lumora/internal/metrics"
	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/rs/zerolog"
)

// Invoke performs one candidate attempt and returns its artifacts. An
// empty artifact slice with a nil error counts as a failed attempt.
type Invoke[T any] func(ctx context.Context, candidate catalog.Descriptor) ([]T, error)

// Result carries the winning candidate's artifacts.
type Result[T any] struct {
	Artifacts []T
	Candidate catalog.Descriptor
	// WaitHints collects human-readable rate-limit hints from candidates
	// skipped during the pass.
	WaitHints []string
}

// Coordinator runs fallback passes. A single pass is sequential by design:
// a later candidate must not be charged quota when an earlier one already
// succeeded.
type Coordinator struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a coordinator.
func New(m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	return &Coordinator{metrics: m, logger: logger}
}

// Run tries candidates in order. RateLimited records a wait hint and
// advances without sleeping (the caller decides whether to retry the whole
// pass later). ContentBlocked aborts immediately: a policy rejection is a
// property of the request, not the backend, so further candidates would
// waste quota. Any other failure advances, remembering the last error.
func Run[T any](ctx context.Context, c *Coordinator, candidates []catalog.Descriptor, invoke Invoke[T]) (*Result[T], error) {
	if len(candidates) == 0 {
		return nil, llm.NewError(llm.KindConfigurationError, "no candidate models configured")
	}

	var waitHints []string
	var lastErr error

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, llm.ClassifyTransport(err)
		}

		artifacts, err := invoke(ctx, candidate)
		if err == nil && len(artifacts) > 0 {
			c.record("success")
			c.logger.Info().Str("model_id", candidate.ID).Msg("Fallback candidate succeeded")
			return &Result[T]{Artifacts: artifacts, Candidate: candidate, WaitHints: waitHints}, nil
		}

		if err == nil {
			err = llm.NewError(llm.KindBackendError, "candidate returned no artifacts")
		}

		switch llm.KindOf(err) {
		case llm.KindContentBlocked:
			c.record("blocked")
			c.logger.Warn().Str("model_id", candidate.ID).Msg("Fallback pass aborted by content block")
			return nil, err
		case llm.KindRateLimited:
			c.record("rate_limited")
			hint := fmt.Sprintf("model %s is rate limited", candidate.ID)
			if wait, ok := llm.RetryAfterHint(err); ok {
				hint = fmt.Sprintf("model %s is rate limited, retry in %s", candidate.ID, wait)
			}
			waitHints = append(waitHints, hint)
			lastErr = err
		default:
			c.record("error")
			lastErr = err
		}

		c.logger.Warn().
			Str("model_id", candidate.ID).
			Str("kind", string(llm.KindOf(err))).
			Msg("Fallback candidate failed, advancing")
	}

	c.record("exhausted")

	// The aggregate failure carries only the last error's classification,
	// never the concatenated per-candidate internals.
	message := "all candidate models failed, please try again later"
	kind := llm.KindBackendError
	if llm.KindOf(lastErr) == llm.KindRateLimited {
		kind = llm.KindRateLimited
	}
	return nil, llm.NewError(kind, message)
}

func (c *Coordinator) record(outcome string) {
	if c.metrics != nil {
		c.metrics.FallbackAttempts.WithLabelValues(outcome).Inc()
	}
}
