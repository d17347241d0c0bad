package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second} {
		if got := policy.Delay(i); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i, want, got)
		}
	}

	policy.MaxDelay = 5 * time.Second
	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("expected 5s cap, got %v", got)
	}

	policy.Multiplier = 0
	if got := policy.Delay(3); got != time.Second {
		t.Errorf("non-positive multiplier should keep the base delay, got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, Jitter: true}
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetry(t *testing.T) {
	serverErr := &Error{Kind: KindServer, Message: "server error"}
	authErr := &Error{Kind: KindAuthentication, Message: "invalid key"}

	tests := []struct {
		name      string
		retries   int
		failures  int // calls that fail before success; -1 fails forever
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds after transient failures", 3, 2, serverErr, 3, false},
		{"permanent error is not retried", 3, -1, authErr, 1, true},
		{"gives up after max retries", 2, -1, serverErr, 3, true},
		{"zero retries is one attempt", 0, -1, serverErr, 1, true},
		{"immediate success", 0, 0, nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls, retried int
			policy := fastPolicy(tt.retries)
			policy.OnRetry = func(error, int, time.Duration) { retried++ }

			result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
				calls++
				if tt.failures < 0 || calls <= tt.failures {
					return "", tt.err
				}
				return "ok", nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && result != "ok" {
				t.Errorf("result = %q", result)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if retried != calls-1 {
				t.Errorf("OnRetry called %d times for %d calls", retried, calls)
			}
		})
	}
}

func TestRetryCancelled(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, Multiplier: 1, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("always fails")
	})
	if KindOf(err) != KindAborted {
		t.Fatalf("expected aborted error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("aborted error should wrap context.Canceled")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 0 || p.BaseDelay != time.Second || p.MaxDelay != time.Minute || p.Multiplier != 2 || !p.Jitter {
		t.Errorf("unexpected default policy %+v", p)
	}
}

func TestRetryMiddleware(t *testing.T) {
	for _, tt := range []struct {
		name   string
		policy RetryPolicy
		want   int
	}{
		{"default does not retry", DefaultRetryPolicy(), 1},
		{"two retries", fastPolicy(2), 3},
	} {
		mock := &mockAdapter{name: "test", err: &Error{Kind: KindServer}}
		client := NewClient(WithProvider("test", mock), WithMiddleware(RetryMiddleware(tt.policy)))
		if _, err := client.Complete(context.Background(), Request{Model: "m"}); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		if len(mock.requests) != tt.want {
			t.Errorf("%s: expected %d calls, got %d", tt.name, tt.want, len(mock.requests))
		}
	}
}
