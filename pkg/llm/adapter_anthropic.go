package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter implements Adapter for the Anthropic message API. The
// backend requires the system directive in a dedicated field and returns
// content as an array of typed blocks.
type AnthropicAdapter struct {
	opts AdapterOptions
}

// NewAnthropicAdapter creates an Anthropic adapter.
func NewAnthropicAdapter(opts AdapterOptions) *AnthropicAdapter {
	return &AnthropicAdapter{opts: opts}
}

// Family returns the provider family tag.
func (a *AnthropicAdapter) Family() string {
	return FamilyAnthropic
}

// Send performs one chat call against Anthropic.
func (a *AnthropicAdapter) Send(ctx context.Context, req ChatRequest, credential, backendModel string) (*ChatResponse, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(credential)}
	if a.opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(a.opts.Endpoint))
	}
	client := anthropic.NewClient(clientOpts...)

	system, rest := req.SplitSystem()

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(backendModel),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	response, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.classify(err)
	}

	text := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	return &ChatResponse{
		Text:         text,
		BackendModel: string(response.Model),
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
			TotalTokens:  int(response.Usage.InputTokens + response.Usage.OutputTokens),
		},
		FinishReason: anthropicFinishReason(string(response.StopReason)),
	}, nil
}

func (a *AnthropicAdapter) classify(err error) *Error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		var header = map[string][]string{}
		if apierr.Response != nil {
			header = apierr.Response.Header
		}
		return ClassifyStatus(apierr.StatusCode, apierr.Error(), header)
	}
	return ClassifyTransport(err)
}

func anthropicFinishReason(stopReason string) FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "refusal":
		return FinishFiltered
	case "tool_use":
		return FinishToolCall
	default:
		return FinishUnknown
	}
}
