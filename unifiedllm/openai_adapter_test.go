package unifiedllm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAITestServer(t *testing.T, status int, body string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"step\":\"OUTPUT\",\"content\":\"done\"}"}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func TestNewOpenAIAdapterRequiresKey(t *testing.T) {
	if _, err := NewOpenAIAdapter(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestOpenAIAdapterComplete(t *testing.T) {
	var captured map[string]interface{}
	srv := newOpenAITestServer(t, http.StatusOK, completionBody, &captured)

	adapter, err := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}

	temp := 0.0
	resp, err := adapter.Complete(context.Background(), Request{
		Model: "4o-mini",
		Messages: []Message{
			SystemMessage("system prompt"),
			UserMessage("question"),
			AssistantMessage(`{"step":"THINK","content":"hmm"}`),
		},
		ResponseFormat: JSONObjectFormat(),
		Temperature:    &temp,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text() != `{"step":"OUTPUT","content":"done"}` {
		t.Errorf("unexpected text %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("expected 17 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if resp.FinishReason.Reason != "stop" {
		t.Errorf("expected finish reason stop, got %q", resp.FinishReason.Reason)
	}

	if captured["model"] != "gpt-4o-mini" {
		t.Errorf("expected alias resolved to gpt-4o-mini, got %v", captured["model"])
	}
	rf, ok := captured["response_format"].(map[string]interface{})
	if !ok || rf["type"] != "json_object" {
		t.Errorf("expected json_object response_format, got %v", captured["response_format"])
	}
	msgs, ok := captured["messages"].([]interface{})
	if !ok || len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %v", captured["messages"])
	}
	roles := []string{"system", "user", "assistant"}
	for i, m := range msgs {
		if role := m.(map[string]interface{})["role"]; role != roles[i] {
			t.Errorf("message %d: expected role %s, got %v", i, roles[i], role)
		}
	}
}

func TestOpenAIAdapterErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			want:   KindAuthentication,
		},
		{
			name:   "quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"},"message":"You exceeded your current quota","code":"insufficient_quota"}`,
			want:   KindQuotaExceeded,
		},
		{
			name:   "server",
			status: http.StatusInternalServerError,
			body:   `{"error":{"message":"boom","type":"server_error","code":"server_error"}}`,
			want:   KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenAITestServer(t, tt.status, tt.body, nil)
			adapter, err := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(srv.URL+"/"))
			if err != nil {
				t.Fatalf("NewOpenAIAdapter: %v", err)
			}
			_, err = adapter.Complete(context.Background(), Request{
				Model:    "gpt-4o-mini",
				Messages: []Message{UserMessage("hi")},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (%v)", got, tt.want, err)
			}
		})
	}
}

func TestOpenAIAdapterNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	adapter, err := NewOpenAIAdapter("sk-test", WithOpenAIBaseURL(url+"/"))
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}
	_, err = adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if KindOf(err) != KindNetwork || !IsRetryable(err) {
		t.Fatalf("expected retryable network error, got %v", err)
	}
}
