package unifiedllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// jsonObjectDirective is appended to the system prompt when the request asks
// for JSON output, since gollm has no provider-neutral JSON mode.
const jsonObjectDirective = "Respond with exactly one JSON object and nothing else. Do not wrap it in markdown fences."

// GollmAdapter serves providers without a native adapter through gollm.
// gollm takes a single prompt string, so the transcript is flattened.
type GollmAdapter struct {
	provider string
	model    string

	mu  sync.Mutex // guards llm options, which are set per request
	llm gollm.LLM
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the model used when a request does not name one.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.model = model }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.temperature = t }
}

// WithGollmOptions passes raw gollm configuration through.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmAdapter creates an adapter for provider. apiKey may be empty for
// providers that need none (a local ollama, for example).
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{maxTokens: 1024, temperature: 0.7}
	for _, opt := range opts {
		opt(cfg)
	}

	model := ResolveModelID(cfg.model)
	if model == "" {
		info := GetDefaultModel(provider)
		if info == nil {
			return nil, newError(KindConfiguration, provider, "no model configured and the catalog has no default", nil)
		}
		model = info.ID
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries belong to RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, newError(KindConfiguration, provider, fmt.Sprintf("create gollm client for model %s", model), err)
	}
	return &GollmAdapter{provider: provider, model: model, llm: llm}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string { return a.provider }

// Complete sends one request. Calls are serialized because gollm options
// are set on the shared client.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	system, text := flattenTranscript(req.Messages)
	if req.WantsJSON() {
		system = strings.TrimSpace(system + "\n\n" + jsonObjectDirective)
	}
	var promptOpts []gollm.PromptOption
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	prompt := gollm.NewPrompt(text, promptOpts...)

	a.mu.Lock()
	a.applyRequestOptions(req)
	out, err := a.llm.Generate(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}

	if req.WantsJSON() {
		out = stripCodeFence(out)
	}
	return a.buildResponse(req, out), nil
}

// flattenTranscript joins system messages into one system prompt and the
// rest into a single role-labelled prompt. The labels keep OBSERVE messages
// distinguishable from the model's own earlier steps.
func flattenTranscript(messages []Message) (system, prompt string) {
	var sys, turns []string
	for _, msg := range messages {
		text := msg.TextContent()
		if text == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, text)
		case RoleAssistant:
			turns = append(turns, "assistant: "+text)
		default:
			turns = append(turns, "user: "+text)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(turns, "\n\n")
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	model := a.model
	if req.Model != "" {
		model = ResolveModelID(req.Model)
	}
	a.llm.SetOption("model", model)
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse wraps generated text. gollm reports no usage, so token
// counts are estimated.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := a.model
	if req.Model != "" {
		model = ResolveModelID(req.Model)
	}
	in, out := estimateTokens(req), approxTokens(text)
	return &Response{
		ID:           "resp_" + uuid.NewString(),
		Model:        model,
		Provider:     a.provider,
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// stripCodeFence removes a surrounding ```json fence some models add even
// when told not to.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// gollmErrorRules classify gollm errors, which carry no status code, by
// message text. The first rule with a matching needle wins.
var gollmErrorRules = []struct {
	kind    ErrorKind
	status  int
	needles []string
}{
	{KindAuthentication, 401, []string{"401", "unauthorized", "invalid key", "invalid api key"}},
	{KindQuotaExceeded, 429, []string{"insufficient_quota", "quota"}},
	{KindAccessDenied, 403, []string{"403", "forbidden"}},
	{KindNotFound, 404, []string{"404", "not found"}},
	{KindRateLimit, 429, []string{"429", "rate limit"}},
	{KindContextLength, 413, []string{"context length", "too many tokens"}},
	{KindServer, 500, []string{"500", "502", "503", "internal server"}},
	{KindTimeout, 0, []string{"timeout", "timed out"}},
	{KindContentFilter, 0, []string{"content filter", "safety"}},
}

// translateError converts a gollm error into an *Error.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := contextError(a.provider, err); ctxErr != nil {
		return ctxErr
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, rule := range gollmErrorRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return &Error{Kind: rule.kind, Provider: a.provider, StatusCode: rule.status, Message: msg, Cause: err}
			}
		}
	}
	return newError(KindUnknown, a.provider, msg, err)
}

// approxTokens assumes four characters per token.
func approxTokens(text string) int { return len(text) / 4 }

// estimateTokens approximates the prompt size of req, never less than 10.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += approxTokens(msg.TextContent())
	}
	return max(total, 10)
}
