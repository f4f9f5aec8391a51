package llm

// Role identifies the author of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a canonical conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical chat request shape shared by all adapters.
// Adapters rename and reshape these fields into their backend's wire format
// but never change their values.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// SplitSystem extracts the first system-role message and returns the
// remaining messages. Backends with a dedicated system slot use this;
// any further system entries are dropped as only one logical system
// directive is meaningful per request.
func (r ChatRequest) SplitSystem() (string, []Message) {
	system := ""
	rest := make([]Message, 0, len(r.Messages))
	for _, msg := range r.Messages {
		if msg.Role == RoleSystem {
			if system == "" {
				system = msg.Content
			}
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// FinishReason is the normalized termination reason of a chat response.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishLength   FinishReason = "length"
	FinishFiltered FinishReason = "filtered"
	FinishToolCall FinishReason = "tool_call"
	FinishUnknown  FinishReason = "unknown"
)

// Usage is backend-reported token accounting. Fields are zero-filled when
// the backend omits them so cost accounting never branches on optionals.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChatResponse is the canonical result of a single chat call.
type ChatResponse struct {
	Text         string       `json:"text"`
	BackendModel string       `json:"backend_model"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
}
