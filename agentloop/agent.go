package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/martinemde/steploop/unifiedllm"
)

// AgentConfig holds configuration for an agent.
type AgentConfig struct {
	MaxSteps            int            `json:"max_steps"`
	Provider            string         `json:"provider,omitempty"` // empty = client default
	Temperature         *float64       `json:"temperature,omitempty"`
	ToolOutputLimits    map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits      map[string]int `json:"tool_line_limits,omitempty"`
	EnableLoopDetection bool           `json:"enable_loop_detection"`
	LoopDetectionWindow int            `json:"loop_detection_window"`
	LoadProjectDocs     bool           `json:"load_project_docs"`
	UserInstructions    string         `json:"user_instructions,omitempty"` // appended last to system prompt
}

// DefaultAgentConfig returns five steps with loop detection on.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxSteps:            5,
		EnableLoopDetection: true,
		LoopDetectionWindow: 3,
		LoadProjectDocs:     true,
	}
}

// CallError reports a failed model call. It ends the run.
type CallError struct {
	Step int
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("model call failed at step %d: %v", e.Step, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// TurnResult describes what one turn did.
type TurnResult struct {
	Outcome Outcome
	Step    Step
	Output  string
	Err     error
}

// RunResult is the end state of a run. Output is set only when Outcome is
// OutcomeOutputReturned.
type RunResult struct {
	RunID   string
	Outcome Outcome
	Output  string
	State   RunState
}

// Agent drives the step loop for one profile and execution environment.
// Runs are sequential; an Agent holds no per-run state.
type Agent struct {
	id      string
	profile Profile
	env     ExecutionEnvironment
	client  *unifiedllm.Client
	logger  *slog.Logger
	emitter *EventEmitter
	config  AgentConfig
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithConfig replaces the default configuration.
func WithConfig(cfg AgentConfig) AgentOption {
	return func(a *Agent) { a.config = cfg }
}

// WithClient sets the LLM client. Without one every model call fails with a
// configuration error.
func WithClient(client *unifiedllm.Client) AgentOption {
	return func(a *Agent) { a.client = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = logger }
}

// WithEventEmitter sets the event emitter.
func WithEventEmitter(emitter *EventEmitter) AgentOption {
	return func(a *Agent) { a.emitter = emitter }
}

// NewAgent creates an agent.
func NewAgent(profile Profile, env ExecutionEnvironment, opts ...AgentOption) *Agent {
	a := &Agent{
		id:      uuid.New().String(),
		profile: profile,
		env:     env,
		config:  DefaultAgentConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = unifiedllm.NewClient()
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.emitter == nil {
		a.emitter = NewEventEmitter(256)
	}
	if a.config.MaxSteps <= 0 {
		a.config.MaxSteps = DefaultAgentConfig().MaxSteps
	}
	return a
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Profile returns the agent's profile.
func (a *Agent) Profile() Profile { return a.profile }

// Events returns the event channel for the host application.
func (a *Agent) Events() <-chan Event { return a.emitter.Events() }

// Close closes the event channel.
func (a *Agent) Close() { a.emitter.Close() }

// SystemPrompt builds the system prompt for a new run.
func (a *Agent) SystemPrompt() string {
	docs := ""
	if a.config.LoadProjectDocs {
		docs = DiscoverProjectDocs(a.env.WorkingDirectory())
	}
	prompt := a.profile.BuildSystemPrompt(a.env, docs)
	if a.config.UserInstructions != "" {
		prompt += "\n# User Instructions\n\n" + a.config.UserInstructions + "\n"
	}
	return prompt
}

// NewRun creates the initial state for query.
func (a *Agent) NewRun(query string) RunState {
	return NewRunState(uuid.New().String(), a.SystemPrompt(), query, a.config.MaxSteps)
}

// Run processes query until the model emits OUTPUT, a turn fails, or the
// step budget is spent. The result is never nil. The error is a *ParseError
// or *CallError; running out of steps is not an error.
func (a *Agent) Run(ctx context.Context, query string) (*RunResult, error) {
	state := a.NewRun(query)
	a.logger.Info("run started",
		"run_id", state.ID,
		"variant", a.profile.Variant(),
		"model", a.profile.ModelID(),
		"max_steps", state.MaxSteps,
		"query", query)
	a.emit(state, EventRunStart, map[string]interface{}{
		"query":   query,
		"variant": string(a.profile.Variant()),
		"model":   a.profile.ModelID(),
	})

	var turn TurnResult
	for {
		state, turn = a.Turn(ctx, state)
		if turn.Outcome.Terminal() {
			break
		}
	}

	a.logger.Info("run finished",
		"run_id", state.ID,
		"outcome", turn.Outcome,
		"steps", state.Step,
		"input_tokens", state.Usage.InputTokens,
		"output_tokens", state.Usage.OutputTokens)
	a.emit(state, EventRunEnd, map[string]interface{}{
		"outcome": string(turn.Outcome),
	})

	return &RunResult{
		RunID:   state.ID,
		Outcome: turn.Outcome,
		Output:  turn.Output,
		State:   state,
	}, turn.Err
}

// Turn performs one model call and dispatches the resulting step. The
// returned state is the input state plus whatever the turn appended.
func (a *Agent) Turn(ctx context.Context, state RunState) (RunState, TurnResult) {
	if state.BudgetExhausted() {
		a.logger.Warn("maximum steps reached", "run_id", state.ID, "max_steps", state.MaxSteps)
		a.emit(state, EventStepLimit, map[string]interface{}{"max_steps": state.MaxSteps})
		return state, TurnResult{Outcome: OutcomeStepBudgetExhausted}
	}
	state.Step++

	resp, err := a.client.Complete(ctx, a.buildRequest(state))
	if err != nil {
		callErr := &CallError{Step: state.Step, Err: err}
		a.logger.Error("model call failed", "run_id", state.ID, "step", state.Step, "error", err)
		a.emit(state, EventCallError, map[string]interface{}{
			"error":     err.Error(),
			"kind":      string(unifiedllm.KindOf(err)),
			"retryable": unifiedllm.IsRetryable(err),
		})
		return state, TurnResult{Outcome: OutcomeFatalCallError, Err: callErr}
	}

	raw := resp.Text()
	state.Usage = state.Usage.Add(resp.Usage)
	state.Transcript = state.Transcript.Append(assistantMessage(raw))
	a.logger.Debug("raw response", "run_id", state.ID, "step", state.Step, "content", raw)

	step, err := ParseStep(raw)
	if err != nil {
		a.logger.Error("unparseable model output", "run_id", state.ID, "step", state.Step, "error", err)
		a.emit(state, EventParseError, map[string]interface{}{
			"error": err.Error(),
			"raw":   raw,
		})
		return state, TurnResult{Outcome: OutcomeParseFailed, Err: err}
	}

	result := TurnResult{Outcome: OutcomeAwaitingTurn, Step: step}
	switch step.Kind {
	case StepThink:
		a.logger.Info("THINK", "run_id", state.ID, "step", state.Step, "content", step.Content)
		a.emit(state, EventThink, map[string]interface{}{"content": step.Content})
	case StepOutput:
		a.logger.Info("OUTPUT", "run_id", state.ID, "step", state.Step, "content", step.Content)
		a.emit(state, EventOutput, map[string]interface{}{"content": step.Content})
		result.Outcome = OutcomeOutputReturned
		result.Output = step.Content
	case StepAction:
		state = a.act(ctx, state, step)
	default:
		a.logger.Warn("unrecognized step", "run_id", state.ID, "step", state.Step, "kind", string(step.Kind))
		a.emit(state, EventUnknownStep, map[string]interface{}{"kind": string(step.Kind)})
	}
	return state, result
}

// act invokes the tool named by an ACTION step and appends the OBSERVE
// message. Unknown tools and bad input are reported in the observation.
func (a *Agent) act(ctx context.Context, state RunState, step Step) RunState {
	a.logger.Info("ACTION",
		"run_id", state.ID,
		"step", state.Step,
		"tool", step.Tool,
		"input", step.InputText())
	a.emit(state, EventAction, map[string]interface{}{
		"tool":    step.Tool,
		"input":   step.InputText(),
		"content": step.Content,
	})

	output, err := a.profile.ToolRegistry().Invoke(ctx, step.Tool, step.Input, a.env)
	var unknown *UnknownToolError
	switch {
	case errors.As(err, &unknown):
		a.logger.Warn("tool not found", "run_id", state.ID, "tool", step.Tool)
		output = "Error: " + unknown.Error()
	case err != nil:
		output = fmt.Sprintf("Error: %s: %v", step.Tool, err)
	}

	observation := TruncateToolOutput(output, step.Tool, a.config.ToolOutputLimits, a.config.ToolLineLimits)
	state.Transcript = state.Transcript.Append(observeMessage(observation))

	a.logger.Info("OBSERVE", "run_id", state.ID, "step", state.Step, "content", observation)
	a.emit(state, EventObserve, map[string]interface{}{
		"tool":   step.Tool,
		"output": output, // untruncated
	})

	if a.config.EnableLoopDetection && DetectLoop(state.Transcript.Actions(), a.config.LoopDetectionWindow) {
		a.logger.Warn("repeated actions detected", "run_id", state.ID, "window", a.config.LoopDetectionWindow)
		a.emit(state, EventLoopDetection, map[string]interface{}{
			"window": a.config.LoopDetectionWindow,
			"tool":   step.Tool,
		})
	}
	return state
}

func (a *Agent) buildRequest(state RunState) unifiedllm.Request {
	return unifiedllm.Request{
		Model:          a.profile.ModelID(),
		Provider:       a.config.Provider,
		Messages:       state.Transcript.ToLLMMessages(),
		ResponseFormat: unifiedllm.JSONObjectFormat(),
		Temperature:    a.config.Temperature,
		Metadata: map[string]string{
			"run_id": state.ID,
			"step":   strconv.Itoa(state.Step),
		},
	}
}

func (a *Agent) emit(state RunState, kind EventKind, data map[string]interface{}) {
	a.emitter.Emit(state.ID, state.Step, kind, data)
}
