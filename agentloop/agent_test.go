package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/steploop/unifiedllm"
)

func TestRunOutputFirstTurn(t *testing.T) {
	adapter := newScriptedAdapter(`{"step":"OUTPUT","content":"done"}`)
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeOutputReturned || result.Output != "done" {
		t.Errorf("unexpected result %+v", result)
	}
	if adapter.calls() != 1 {
		t.Errorf("expected exactly 1 model call, got %d", adapter.calls())
	}
	// system + user + assistant, no OBSERVE.
	if n := result.State.Transcript.Len(); n != 3 {
		t.Errorf("expected transcript of 3 messages, got %d", n)
	}
	for _, m := range result.State.Transcript.Messages() {
		if strings.Contains(m.Content, `"OBSERVE"`) && m.Role == unifiedllm.RoleUser {
			t.Error("unexpected OBSERVE message")
		}
	}
}

func TestRunRequestsJSONObject(t *testing.T) {
	adapter := newScriptedAdapter(`{"step":"OUTPUT","content":"done"}`)
	temp := 0.2
	cfg := DefaultAgentConfig()
	cfg.LoadProjectDocs = false
	cfg.Temperature = &temp
	agent := newTestAgent(t.TempDir(), adapter, &cfg)

	if _, err := agent.Run(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	req := adapter.requests[0]
	if !req.WantsJSON() {
		t.Error("request should ask for a JSON object")
	}
	if req.Model != "test-model" {
		t.Errorf("model = %q", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("temperature not forwarded: %v", req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != unifiedllm.RoleSystem || req.Messages[1].TextContent() != "hello" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}
	if req.Metadata["step"] != "1" || req.Metadata["run_id"] == "" {
		t.Errorf("unexpected metadata %v", req.Metadata)
	}
}

func TestRunStepBudget(t *testing.T) {
	for _, maxSteps := range []int{1, 3, 5} {
		adapter := newScriptedAdapter(`{"step":"THINK","content":"still thinking"}`)
		cfg := DefaultAgentConfig()
		cfg.LoadProjectDocs = false
		cfg.MaxSteps = maxSteps
		agent := newTestAgent(t.TempDir(), adapter, &cfg)

		result, err := agent.Run(context.Background(), "loop forever")
		if err != nil {
			t.Fatalf("budget exhaustion must not be an error: %v", err)
		}
		if result.Outcome != OutcomeStepBudgetExhausted {
			t.Errorf("outcome = %s", result.Outcome)
		}
		if result.Output != "" {
			t.Errorf("expected no output, got %q", result.Output)
		}
		if adapter.calls() != maxSteps {
			t.Errorf("maxSteps %d: expected %d calls, got %d", maxSteps, maxSteps, adapter.calls())
		}
		if result.State.Step != maxSteps {
			t.Errorf("step counter = %d", result.State.Step)
		}
	}
}

func TestRunMixedStepsHitBudget(t *testing.T) {
	adapter := newScriptedAdapter(
		`{"step":"THINK","content":"look around"}`,
		`{"step":"ACTION","tool":"executeCommand","input":"del /f x","content":"try"}`,
		`{"step":"WAIT","content":"?"}`,
		`{"step":"ACTION","tool":"nope","input":"x"}`,
		`{"step":"THINK","content":"hmm"}`,
		`{"step":"OUTPUT","content":"too late"}`,
	)
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeStepBudgetExhausted || adapter.calls() != 5 {
		t.Errorf("outcome %s after %d calls", result.Outcome, adapter.calls())
	}
}

func TestRunUnknownToolContinues(t *testing.T) {
	adapter := newScriptedAdapter(
		`{"step":"ACTION","tool":"launchRockets","input":"now","content":"go"}`,
		`{"step":"OUTPUT","content":"gave up"}`,
	)
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "launch")
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeOutputReturned || result.Output != "gave up" {
		t.Errorf("unexpected result %+v", result)
	}

	msgs := result.State.Transcript.Messages()
	// system, user, assistant(action), observe, assistant(output)
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	observe := msgs[3]
	if observe.Role != unifiedllm.RoleUser {
		t.Errorf("observe role = %s", observe.Role)
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(observe.Content), &env); err != nil {
		t.Fatalf("observe not JSON: %v", err)
	}
	if env["step"] != "OBSERVE" || env["content"] != "Error: Tool launchRockets not available" {
		t.Errorf("unexpected observe %v", env)
	}
}

func TestRunEmptyToolNameContinues(t *testing.T) {
	adapter := newScriptedAdapter(
		`{"step":"ACTION","tool":"","input":"x"}`,
		`{"step":"OUTPUT","content":"gave up"}`,
	)
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("empty tool name must not end the run: %v", err)
	}
	if result.Outcome != OutcomeOutputReturned || adapter.calls() != 2 {
		t.Errorf("outcome %s after %d calls", result.Outcome, adapter.calls())
	}
	msgs := result.State.Transcript.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[3].Content != ObserveMessage("Error: Tool  not available") {
		t.Errorf("unexpected observe %s", msgs[3].Content)
	}
}

func TestTurnActionAppendsOneObserve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"demo"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	actions := []string{
		`{"step":"ACTION","tool":"readFile","input":"package.json","content":"reading"}`,
		`{"step":"ACTION","tool":"readFile","input":"missing.txt"}`,
		`{"step":"ACTION","tool":"writeFile","input":{"path":"out.txt","content":"x"}}`,
		`{"step":"ACTION","tool":"writeFile","input":"not an object"}`,
		`{"step":"ACTION","tool":"createDirectory","input":"sub"}`,
		`{"step":"ACTION","tool":"getWeatherInfo","input":"Pune"}`,
	}
	for _, raw := range actions {
		adapter := newScriptedAdapter(raw)
		agent := newTestAgent(dir, adapter, nil)
		state := agent.NewRun("q")
		before := state.Transcript.Len()

		next, turn := agent.Turn(context.Background(), state)
		if turn.Outcome != OutcomeAwaitingTurn || turn.Err != nil {
			t.Errorf("%s: outcome %s err %v", raw, turn.Outcome, turn.Err)
		}
		if state.Transcript.Len() != before {
			t.Errorf("%s: input state was mutated", raw)
		}
		if next.Transcript.Len() != before+2 {
			t.Errorf("%s: expected assistant + observe, got %d new messages", raw, next.Transcript.Len()-before)
		}
		last, _ := next.Transcript.Last()
		step, err := ParseStep(last.Content)
		if err != nil || step.Kind != StepObserve {
			t.Errorf("%s: last message is not an OBSERVE step: %q", raw, last.Content)
		}
	}
}

func TestTurnReadFileObservation(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"demo"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	adapter := newScriptedAdapter(`{"step":"ACTION","tool":"readFile","input":"package.json"}`)
	agent := newTestAgent(dir, adapter, nil)

	next, _ := agent.Turn(context.Background(), agent.NewRun("what is inside my package.json file?"))
	last, _ := next.Transcript.Last()
	if last.Content != ObserveMessage(`{"name":"demo"}`) {
		t.Errorf("unexpected observation %s", last.Content)
	}
}

func TestTurnThinkAndUnknownDoNotAddMessages(t *testing.T) {
	for _, raw := range []string{
		`{"step":"THINK","content":"pondering"}`,
		`{"step":"DANCE","content":"?"}`,
		`{"step":"OBSERVE","content":"model pretending"}`,
	} {
		adapter := newScriptedAdapter(raw)
		agent := newTestAgent(t.TempDir(), adapter, nil)
		state := agent.NewRun("q")

		next, turn := agent.Turn(context.Background(), state)
		if turn.Outcome != OutcomeAwaitingTurn {
			t.Errorf("%s: outcome %s", raw, turn.Outcome)
		}
		if next.Transcript.Len() != state.Transcript.Len()+1 {
			t.Errorf("%s: expected only the assistant message to be added", raw)
		}
	}
}

func TestRunUnparseableOutput(t *testing.T) {
	adapter := newScriptedAdapter(`Sure! Here is the answer: 42`)
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "question")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if result.Outcome != OutcomeParseFailed || result.Output != "" {
		t.Errorf("unexpected result %+v", result)
	}
	last, _ := result.State.Transcript.Last()
	if last.Role != unifiedllm.RoleAssistant || last.Content != `Sure! Here is the answer: 42` {
		t.Errorf("raw response not retained: %+v", last)
	}
	if adapter.calls() != 1 {
		t.Errorf("expected no further calls after parse failure, got %d", adapter.calls())
	}
}

func TestRunInvalidActionIsParseError(t *testing.T) {
	adapter := newScriptedAdapter(`{"step":"ACTION","content":"no tool"}`)
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "q")
	var perr *ParseError
	if !errors.As(err, &perr) || result.Outcome != OutcomeParseFailed {
		t.Fatalf("expected parse failure, got %s / %v", result.Outcome, err)
	}
}

func TestRunCallError(t *testing.T) {
	adapter := newScriptedAdapter()
	adapter.err = &unifiedllm.Error{
		Kind:     unifiedllm.KindQuotaExceeded,
		Provider: "scripted",
		Message:  "quota exceeded",
	}
	agent := newTestAgent(t.TempDir(), adapter, nil)

	result, err := agent.Run(context.Background(), "q")
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if unifiedllm.KindOf(err) != unifiedllm.KindQuotaExceeded {
		t.Error("CallError should unwrap to the provider error")
	}
	if callErr.Step != 1 {
		t.Errorf("step = %d", callErr.Step)
	}
	if result.Outcome != OutcomeFatalCallError {
		t.Errorf("outcome = %s", result.Outcome)
	}
	if n := result.State.Transcript.Len(); n != 2 {
		t.Errorf("nothing should be appended after a call error, transcript has %d", n)
	}
	if adapter.calls() != 1 {
		t.Errorf("call errors are not retried, got %d calls", adapter.calls())
	}
}

func TestRunBlockedCommandScenario(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(target, []byte("precious"), 0o644); err != nil {
		t.Fatal(err)
	}
	adapter := newScriptedAdapter(
		`{"step":"ACTION","tool":"executeCommand","input":"del /f test.txt","content":"cleaning"}`,
		`{"step":"OUTPUT","content":"could not delete"}`,
	)
	agent := newTestAgent(dir, adapter, nil)

	result, err := agent.Run(context.Background(), "delete test.txt")
	if err != nil {
		t.Fatal(err)
	}
	observe := result.State.Transcript.Messages()[3]
	if !strings.Contains(observe.Content, "blocked") {
		t.Errorf("expected blocked observation, got %s", observe.Content)
	}
	if data, err := os.ReadFile(target); err != nil || string(data) != "precious" {
		t.Errorf("test.txt modified: %q %v", data, err)
	}
}

func TestRunEmitsEventsAndLogs(t *testing.T) {
	adapter := newScriptedAdapter(
		`{"step":"THINK","content":"plan"}`,
		`{"step":"ACTION","tool":"getWeatherInfo","input":"Pune"}`,
		`{"step":"OUTPUT","content":"hot"}`,
	)
	profile := NewBasicProfile("test-model", DefaultToolOptions())
	client := unifiedllm.NewClient(unifiedllm.WithProvider("scripted", adapter))
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := DefaultAgentConfig()
	cfg.LoadProjectDocs = false
	agent := NewAgent(profile, NewLocalExecutionEnvironment(t.TempDir()),
		WithClient(client), WithLogger(logger), WithConfig(cfg))

	result, err := agent.Run(context.Background(), "weather in Pune?")
	if err != nil || result.Output != "hot" {
		t.Fatalf("unexpected result %+v, %v", result, err)
	}
	agent.Close()

	var kinds []EventKind
	for ev := range agent.Events() {
		if ev.RunID != result.RunID {
			t.Errorf("event %s has run id %q", ev.Kind, ev.RunID)
		}
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EventRunStart, EventThink, EventAction, EventObserve, EventOutput, EventRunEnd}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	out := logs.String()
	for _, want := range []string{"raw response", "THINK", "ACTION", "OBSERVE", "Pune has 32 Degree C", "OUTPUT", "run finished"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q", want)
		}
	}
	if result.State.Usage.TotalTokens != 45 {
		t.Errorf("usage not accumulated: %+v", result.State.Usage)
	}
}

func TestRunLoopDetectionWarnsOnly(t *testing.T) {
	adapter := newScriptedAdapter(`{"step":"ACTION","tool":"readFile","input":"missing.txt"}`)
	cfg := DefaultAgentConfig()
	cfg.LoadProjectDocs = false
	cfg.MaxSteps = 4
	agent := newTestAgent(t.TempDir(), adapter, &cfg)

	result, err := agent.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	agent.Close()

	loops := 0
	for ev := range agent.Events() {
		if ev.Kind == EventLoopDetection {
			loops++
		}
	}
	if loops == 0 {
		t.Error("expected a loop detection event")
	}
	// system + user + 4 * (assistant + observe): no extra steering messages.
	if n := result.State.Transcript.Len(); n != 10 {
		t.Errorf("loop detection must not change the transcript, got %d messages", n)
	}
}

func TestRunTruncatesObservation(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("0123456789", 1000)
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}
	adapter := newScriptedAdapter(`{"step":"ACTION","tool":"readFile","input":"big.txt"}`)
	cfg := DefaultAgentConfig()
	cfg.LoadProjectDocs = false
	cfg.ToolOutputLimits = map[string]int{ToolReadFile: 200}
	agent := newTestAgent(dir, adapter, &cfg)

	next, _ := agent.Turn(context.Background(), agent.NewRun("q"))
	last, _ := next.Transcript.Last()
	step, err := ParseStep(last.Content)
	if err != nil {
		t.Fatal(err)
	}
	if len(step.Content) >= len(big) || !strings.Contains(step.Content, "truncated") {
		t.Errorf("observation not truncated (%d chars)", len(step.Content))
	}
}

func TestSystemPromptUserInstructions(t *testing.T) {
	cfg := DefaultAgentConfig()
	cfg.LoadProjectDocs = false
	cfg.UserInstructions = "Answer in French."
	agent := newTestAgent(t.TempDir(), newScriptedAdapter(), &cfg)

	prompt := agent.SystemPrompt()
	if !strings.HasSuffix(strings.TrimSpace(prompt), "Answer in French.") {
		t.Error("user instructions should come last")
	}
	state := agent.NewRun("q")
	if state.Transcript.SystemPrompt() != prompt {
		t.Error("run should start with the system prompt")
	}
	if state.MaxSteps != 5 || state.Step != 0 || state.ID == "" {
		t.Errorf("unexpected initial state %+v", state)
	}
}
