package llm

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"
)

// GeminiAdapter implements Adapter for the Gemini API via the genai SDK.
// The backend has no assistant role: turns become a user/"model" pair, the
// system directive rides in its own SystemInstruction slot, and token usage
// lives under UsageMetadata with its own field naming.
type GeminiAdapter struct {
	endpoint string
}

// NewGeminiAdapter creates a Gemini adapter.
func NewGeminiAdapter(opts AdapterOptions) *GeminiAdapter {
	return &GeminiAdapter{endpoint: opts.Endpoint}
}

// Family returns the provider family tag.
func (a *GeminiAdapter) Family() string {
	return FamilyGemini
}

// NewGeminiClient builds a genai client for one call. The client is cheap
// to construct and carries the per-account credential, so callers create
// one per request instead of sharing a keyed singleton.
func NewGeminiClient(ctx context.Context, credential, endpoint string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	}
	if endpoint != "" {
		cfg.HTTPOptions.BaseURL = endpoint
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, Errorf(KindConfigurationError, "failed to create gemini client: %v", err)
	}
	return client, nil
}

// Send performs one chat call against Gemini.
func (a *GeminiAdapter) Send(ctx context.Context, req ChatRequest, credential, backendModel string) (*ChatResponse, error) {
	system, rest := req.SplitSystem()

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	client, err := NewGeminiClient(ctx, credential, a.endpoint)
	if err != nil {
		return nil, err
	}

	response, err := client.Models.GenerateContent(ctx, backendModel, contents, config)
	if err != nil {
		return nil, ClassifyGemini(err)
	}
	if len(response.Candidates) == 0 {
		return nil, NewError(KindBackendError, "no candidates returned")
	}

	candidate := response.Candidates[0]

	// A candidate stopped for SAFETY carries no usable content. Treat it as
	// a moderation rejection rather than an empty reply.
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		return nil, Errorf(KindContentBlocked, "candidate blocked: %s", candidate.FinishReason)
	}

	usage := Usage{}
	if response.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int(response.UsageMetadata.PromptTokenCount),
			OutputTokens: int(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(response.UsageMetadata.TotalTokenCount),
		}
	}

	return &ChatResponse{
		Text:         response.Text(),
		BackendModel: backendModel,
		Usage:        usage,
		FinishReason: geminiFinishReason(candidate.FinishReason),
	}, nil
}

// ClassifyGemini maps a genai SDK error to a classified error. Structured
// API errors classify by status code; anything else is a transport failure.
func ClassifyGemini(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		cerr := ClassifyStatus(apiErr.Code, apiErr.Message, nil)
		if cerr.Kind == KindRateLimited && cerr.RetryAfter == 0 {
			cerr.RetryAfter = geminiRetryDelay(apiErr.Details)
		}
		return cerr
	}
	return ClassifyTransport(err)
}

// geminiRetryDelay extracts the RetryInfo wait hint the API attaches to
// quota errors, e.g. {"retryDelay": "7s"}.
func geminiRetryDelay(details []map[string]any) time.Duration {
	for _, detail := range details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if delay, err := time.ParseDuration(raw); err == nil && delay > 0 {
			return delay
		}
	}
	return 0
}

func geminiFinishReason(reason genai.FinishReason) FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return FinishFiltered
	default:
		return FinishUnknown
	}
}
