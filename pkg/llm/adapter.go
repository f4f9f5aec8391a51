package llm

import "context"

// Provider family tags. The set is closed: adding a backend family means
// adding one adapter and one entry in the dispatch table below.
const (
	FamilyAnthropic = "anthropic"
	FamilyOpenAI    = "openai"
	FamilyGemini    = "gemini"
)

// Adapter translates the canonical chat request into one backend family's
// wire format and the backend's reply into a canonical response. All
// failures returned by Send are classified *Error values.
type Adapter interface {
	// Send performs one chat call against the backend model using the
	// already-decrypted credential.
	Send(ctx context.Context, req ChatRequest, credential, backendModel string) (*ChatResponse, error)

	// Family returns the provider family tag this adapter serves.
	Family() string
}

// AdapterOptions carries per-dispatch knobs shared by all adapters.
type AdapterOptions struct {
	// Endpoint overrides the backend's default base URL when non-empty.
	Endpoint string
}

// AdapterFor selects the adapter for a provider family. Unknown families
// are a configuration problem, not a backend one.
func AdapterFor(family string, opts AdapterOptions) (Adapter, error) {
	switch family {
	case FamilyAnthropic:
		return NewAnthropicAdapter(opts), nil
	case FamilyOpenAI:
		return NewOpenAIAdapter(opts), nil
	case FamilyGemini:
		return NewGeminiAdapter(opts), nil
	default:
		return nil, Errorf(KindConfigurationError, "unsupported provider family: %s", family)
	}
}
