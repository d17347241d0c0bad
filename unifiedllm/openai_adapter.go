package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oshared "github.com/openai/openai-go/shared"
)

// OpenAIAdapter talks to an OpenAI-compatible chat completions endpoint and
// supports native JSON-object response format.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	baseURL string
	model   string
	extra   []ooption.RequestOption
}

// WithOpenAIBaseURL points the adapter at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.baseURL = url
	}
}

// WithOpenAIModel sets the model used when a request does not name one.
func WithOpenAIModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.model = model
	}
}

// WithOpenAIRequestOptions adds raw openai-go request options.
func WithOpenAIRequestOptions(opts ...ooption.RequestOption) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.extra = append(c.extra, opts...)
	}
}

// NewOpenAIAdapter creates an adapter for the OpenAI chat completions API.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) (*OpenAIAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, newError(KindConfiguration, "openai", "api key is required", nil)
	}
	cfg := &openAIAdapterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		model = GetDefaultModel("openai").ID
	}

	// The SDK retries 429/5xx on its own by default; retries belong to the
	// client middleware here.
	reqOpts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(apiKey)),
		ooption.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, ooption.WithBaseURL(strings.TrimSpace(cfg.baseURL)))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &OpenAIAdapter{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Complete sends one chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.buildParams(req)

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.translateError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, newError(KindServer, a.Name(), "response contained no choices", nil)
	}

	choice := completion.Choices[0]
	return &Response{
		ID:       completion.ID,
		Model:    completion.Model,
		Provider: a.Name(),
		Message: Message{
			Role:    RoleAssistant,
			Content: []ContentPart{TextPart(choice.Message.Content)},
		},
		FinishReason: FinishReason{Reason: normalizeFinishReason(choice.FinishReason), Raw: choice.FinishReason},
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

func (a *OpenAIAdapter) buildParams(req Request) openai.ChatCompletionNewParams {
	model := ResolveModelID(req.Model)
	if model == "" {
		model = a.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		text := msg.TextContent()
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.WantsJSON() {
		obj := oshared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &obj}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params
}

func normalizeFinishReason(raw string) string {
	switch raw {
	case "stop", "length", "content_filter":
		return raw
	default:
		return "other"
	}
}

// translateError converts an openai-go error into the unified error hierarchy.
func (a *OpenAIAdapter) translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", apiErr.StatusCode)
		}
		return ErrorFromStatusCode(apiErr.StatusCode, msg, a.Name(), apiErr.Code, err)
	}
	if ctxErr := contextError(a.Name(), err); ctxErr != nil {
		return ctxErr
	}
	return newError(KindNetwork, a.Name(), "request failed", err)
}
