// Package unifiedllm provides a small provider-agnostic chat completion client.
//
// # Architecture
//
//   - ProviderAdapter: one blocking Complete call per provider backend.
//   - Client: routes requests by provider name (or by model catalog lookup)
//     and applies middleware such as LoggingMiddleware and RetryMiddleware.
//   - Errors: every failure is an *Error carrying an ErrorKind
//     (KindAuthentication, KindRateLimit, KindQuotaExceeded, ...); KindOf and
//     IsRetryable classify wrapped errors.
//
// Two adapters are provided. OpenAIAdapter uses the official openai-go SDK
// and supports native JSON-object response format. GollmAdapter wraps
// github.com/teilomillet/gollm for the other providers gollm supports and
// asks for JSON through the system prompt.
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewOpenAIAdapter(os.Getenv("OPENAI_API_KEY"))
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter))
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:          "gpt-4o-mini",
//	    Messages:       []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	    ResponseFormat: unifiedllm.JSONObjectFormat(),
//	})
//	fmt.Println(resp.Text())
package unifiedllm
