package agentloop

import (
	"context"
	"sync"

	"github.com/martinemde/steploop/unifiedllm"
)

// scriptedAdapter replies with the next scripted response on each call and
// repeats the last one once the script runs out.
type scriptedAdapter struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []unifiedllm.Request
}

func newScriptedAdapter(responses ...string) *scriptedAdapter {
	return &scriptedAdapter{responses: responses}
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Complete(_ context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	text := ""
	if idx >= 0 {
		text = s.responses[idx]
	}
	return &unifiedllm.Response{
		ID:       "resp",
		Model:    req.Model,
		Provider: "scripted",
		Message:  unifiedllm.AssistantMessage(text),
		Usage:    unifiedllm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func (s *scriptedAdapter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// newTestAgent builds a workspace agent in a temp directory backed by
// adapter.
func newTestAgent(dir string, adapter unifiedllm.ProviderAdapter, cfg *AgentConfig) *Agent {
	profile := NewWorkspaceProfile("test-model", DefaultToolOptions())
	env := NewLocalExecutionEnvironment(dir)
	client := unifiedllm.NewClient(unifiedllm.WithProvider("scripted", adapter))
	config := DefaultAgentConfig()
	config.LoadProjectDocs = false
	if cfg != nil {
		config = *cfg
	}
	return NewAgent(profile, env, WithClient(client), WithConfig(config))
}
