// Package builder drives the bounded agent loop: model turns propose tool
// calls against a project's virtual file tree, the loop executes them in
// order, and the run ends with a final summary or at the step ceiling.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/avrebarra/lumora/internal/metrics"
	"github.com/avrebarra/lumora/internal/store"
	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/ledger"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/rs/zerolog"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeFinished Outcome = "finished"
	OutcomeAborted  Outcome = "aborted"
)

// Defaults for the run ceilings.
const (
	DefaultMaxSteps     = 8
	DefaultMaxToolCalls = 40
)

// ModelCaller is the slice of the gateway the loop needs.
type ModelCaller interface {
	Resolve(idOrDefault string) (catalog.Descriptor, error)
	Dispatch(ctx context.Context, req llm.ChatRequest, desc catalog.Descriptor) (*llm.ChatResponse, error)
}

// ConversationStore persists the user-visible turns of a run.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, id, projectID string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (*store.MessageRecord, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.MessageRecord, error)
}

// RunParams are the inputs of one builder run.
type RunParams struct {
	AccountID      string
	ProjectID      string
	ConversationID string
	Model          string
	Messages       []llm.Message
}

// RunResult is the outcome of a completed run. Aborted runs are results,
// not errors: their tool effects are already durable.
type RunResult struct {
	Summary        string
	ConversationID string
	Outcome        Outcome
	Steps          int
	ToolCalls      int
}

// Event is one progress notification emitted while a run executes.
type Event struct {
	Type   string `json:"type"` // model_turn, tool_result, finished, aborted
	Step   int    `json:"step"`
	Tool   string `json:"tool,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// EventFunc receives run progress events. May be nil.
type EventFunc func(Event)

// Runner executes builder runs. A run is strictly sequential: one model
// turn, then its tools in order, then the next turn. Later tool calls may
// depend on ids created earlier in the same turn.
type Runner struct {
	gateway       ModelCaller
	registry      *Registry
	conversations ConversationStore
	gate          *ledger.Gate
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	maxSteps      int
	maxToolCalls  int
}

// Config holds runner dependencies.
type Config struct {
	Gateway       ModelCaller
	Registry      *Registry
	Conversations ConversationStore
	Gate          *ledger.Gate
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	MaxSteps      int
	MaxToolCalls  int
}

// NewRunner creates a builder runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.Conversations == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("ledger gate is required")
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = DefaultMaxToolCalls
	}
	return &Runner{
		gateway:       cfg.Gateway,
		registry:      cfg.Registry,
		conversations: cfg.Conversations,
		gate:          cfg.Gate,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		maxSteps:      maxSteps,
		maxToolCalls:  maxToolCalls,
	}, nil
}

// Run executes one builder run to Finished or Aborted.
func (r *Runner) Run(ctx context.Context, params RunParams, onEvent EventFunc) (*RunResult, error) {
	if params.ProjectID == "" {
		return nil, llm.NewError(llm.KindStoreError, "project id is required")
	}
	if len(params.Messages) == 0 {
		return nil, llm.NewError(llm.KindBackendError, "at least one message is required")
	}

	logger := r.logger.With().Str("project_id", params.ProjectID).Logger()

	conv, err := r.conversations.EnsureConversation(ctx, params.ConversationID, params.ProjectID)
	if err != nil {
		return nil, llm.Errorf(llm.KindStoreError, "failed to open conversation: %v", err)
	}

	// History is read before the incoming messages are persisted, so a
	// historical turn whose text happens to match a new one is never
	// dropped from the transcript.
	transcript, err := r.buildTranscript(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	for _, msg := range params.Messages {
		if msg.Role != llm.RoleUser {
			continue
		}
		if _, err := r.conversations.AppendMessage(ctx, conv.ID, msg.Role, msg.Content); err != nil {
			return nil, llm.Errorf(llm.KindStoreError, "failed to persist message: %v", err)
		}
	}
	transcript = append(transcript, params.Messages...)

	ticket, err := r.gate.Authorize(ctx, params.AccountID, ledger.FeatureChat)
	if err != nil {
		return nil, err
	}

	desc, err := r.gateway.Resolve(params.Model)
	if err != nil {
		r.release(ctx, ticket, logger)
		return nil, err
	}

	result, err := r.loop(ctx, params, desc, conv.ID, transcript, onEvent, logger)
	if err != nil {
		r.release(ctx, ticket, logger)
		if r.metrics != nil {
			r.metrics.BuilderRunsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if _, err := r.gate.Commit(ctx, ticket, "builder_run", map[string]interface{}{
		"project_id": params.ProjectID,
		"model_id":   desc.ID,
		"steps":      result.Steps,
		"tool_calls": result.ToolCalls,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to commit builder usage")
	}

	if r.metrics != nil {
		r.metrics.BuilderRunsTotal.WithLabelValues(string(result.Outcome)).Inc()
		r.metrics.BuilderRunSteps.Observe(float64(result.Steps))
	}
	return result, nil
}

// buildTranscript assembles the system directive and the full persisted
// history, in append order. The caller adds the incoming messages after
// persisting them.
func (r *Runner) buildTranscript(ctx context.Context, conversationID string) ([]llm.Message, error) {
	transcript := []llm.Message{{Role: llm.RoleSystem, Content: buildSystemDirective(r.registry)}}

	history, err := r.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, llm.Errorf(llm.KindStoreError, "failed to load history: %v", err)
	}
	for _, rec := range history {
		transcript = append(transcript, llm.Message{Role: rec.Role, Content: rec.Content})
	}
	return transcript, nil
}

func (r *Runner) loop(ctx context.Context, params RunParams, desc catalog.Descriptor, conversationID string, transcript []llm.Message, onEvent EventFunc, logger zerolog.Logger) (*RunResult, error) {
	toolCalls := 0

	for step := 1; step <= r.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			// Cancellation between steps: committed tool effects stay.
			return r.abort(ctx, conversationID, step-1, toolCalls, "run cancelled", onEvent, logger)
		}

		response, err := r.gateway.Dispatch(ctx, llm.ChatRequest{Messages: transcript}, desc)
		if err != nil {
			return nil, err
		}
		emit(onEvent, Event{Type: "model_turn", Step: step})

		requests, isToolTurn := parseToolCalls(response.Text)
		if !isToolTurn {
			summary := strings.TrimSpace(response.Text)
			if _, err := r.conversations.AppendMessage(ctx, conversationID, llm.RoleAssistant, summary); err != nil {
				return nil, llm.Errorf(llm.KindStoreError, "failed to persist summary: %v", err)
			}
			emit(onEvent, Event{Type: "finished", Step: step})
			logger.Info().Int("steps", step).Int("tool_calls", toolCalls).Msg("Builder run finished")
			return &RunResult{
				Summary:        summary,
				ConversationID: conversationID,
				Outcome:        OutcomeFinished,
				Steps:          step,
				ToolCalls:      toolCalls,
			}, nil
		}

		transcript = append(transcript, llm.Message{Role: llm.RoleAssistant, Content: response.Text})

		results := make([]map[string]interface{}, 0, len(requests))
		for _, request := range requests {
			if toolCalls >= r.maxToolCalls {
				return r.abort(ctx, conversationID, step, toolCalls, "tool call ceiling reached", onEvent, logger)
			}
			toolCalls++

			result := r.registry.Execute(ctx, request.Tool, params.ProjectID, request.Params)
			status := "success"
			if _, failed := result["error"]; failed {
				status = "error"
			}
			if r.metrics != nil {
				r.metrics.BuilderToolsTotal.WithLabelValues(request.Tool, status).Inc()
			}
			emit(onEvent, Event{Type: "tool_result", Step: step, Tool: request.Tool, Detail: status})

			result["tool"] = request.Tool
			results = append(results, result)
		}

		encoded, err := json.Marshal(map[string]interface{}{"tool_results": results})
		if err != nil {
			return nil, llm.Errorf(llm.KindStoreError, "failed to encode tool results: %v", err)
		}
		transcript = append(transcript, llm.Message{Role: llm.RoleUser, Content: string(encoded)})
	}

	return r.abort(ctx, conversationID, r.maxSteps, toolCalls, "step ceiling reached", onEvent, logger)
}

// abort ends a run at a ceiling or cancellation. Partial work is already
// durable: tool effects commit per call, never as a run-wide transaction.
func (r *Runner) abort(ctx context.Context, conversationID string, steps, toolCalls int, reason string, onEvent EventFunc, logger zerolog.Logger) (*RunResult, error) {
	summary := fmt.Sprintf("The run stopped early (%s). Changes made so far have been kept.", reason)
	if _, err := r.conversations.AppendMessage(ctx, conversationID, llm.RoleAssistant, summary); err != nil {
		logger.Error().Err(err).Msg("Failed to persist abort summary")
	}
	emit(onEvent, Event{Type: "aborted", Step: steps, Detail: reason})
	logger.Warn().Int("steps", steps).Int("tool_calls", toolCalls).Str("reason", reason).Msg("Builder run aborted")
	return &RunResult{
		Summary:        summary,
		ConversationID: conversationID,
		Outcome:        OutcomeAborted,
		Steps:          steps,
		ToolCalls:      toolCalls,
	}, nil
}

func (r *Runner) release(ctx context.Context, ticket ledger.Ticket, logger zerolog.Logger) {
	if err := r.gate.Release(ctx, ticket); err != nil {
		logger.Error().Err(err).Msg("Failed to release builder ticket")
	}
}

func emit(onEvent EventFunc, event Event) {
	if onEvent != nil {
		onEvent(event)
	}
}

// toolRequest is one requested tool invocation parsed from a model turn.
type toolRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// parseToolCalls extracts tool requests from a model turn. A turn is a
// tool turn only when it is a JSON object with a non-empty tool_calls
// array; anything else is a final summary.
func parseToolCalls(text string) ([]toolRequest, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var envelope struct {
		ToolCalls []toolRequest `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, false
	}
	if len(envelope.ToolCalls) == 0 {
		return nil, false
	}
	for _, call := range envelope.ToolCalls {
		if call.Tool == "" {
			return nil, false
		}
	}
	return envelope.ToolCalls, true
}
