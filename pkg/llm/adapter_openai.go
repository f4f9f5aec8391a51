package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements Adapter for the OpenAI chat completions API.
// The backend takes a flat message array with an inline system role and
// returns a single message choice.
type OpenAIAdapter struct {
	opts AdapterOptions
}

// NewOpenAIAdapter creates an OpenAI adapter.
func NewOpenAIAdapter(opts AdapterOptions) *OpenAIAdapter {
	return &OpenAIAdapter{opts: opts}
}

// Family returns the provider family tag.
func (a *OpenAIAdapter) Family() string {
	return FamilyOpenAI
}

// Send performs one chat call against OpenAI.
func (a *OpenAIAdapter) Send(ctx context.Context, req ChatRequest, credential, backendModel string) (*ChatResponse, error) {
	client := a.client(credential)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(backendModel),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	response, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.classify(err)
	}
	if len(response.Choices) == 0 {
		return nil, NewError(KindBackendError, "no response choices returned")
	}

	choice := response.Choices[0]

	return &ChatResponse{
		Text:         choice.Message.Content,
		BackendModel: response.Model,
		Usage: Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
			TotalTokens:  int(response.Usage.TotalTokens),
		},
		FinishReason: openaiFinishReason(choice.FinishReason),
	}, nil
}

func (a *OpenAIAdapter) client(credential string) openai.Client {
	clientOpts := []option.RequestOption{option.WithAPIKey(credential)}
	if a.opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(a.opts.Endpoint))
	}
	return openai.NewClient(clientOpts...)
}

func (a *OpenAIAdapter) classify(err error) *Error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		var header = map[string][]string{}
		if apierr.Response != nil {
			header = apierr.Response.Header
		}
		return ClassifyStatus(apierr.StatusCode, apierr.Error(), header)
	}
	return ClassifyTransport(err)
}

func openaiFinishReason(finishReason string) FinishReason {
	switch finishReason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishFiltered
	case "tool_calls", "function_call":
		return FinishToolCall
	default:
		return FinishUnknown
	}
}
