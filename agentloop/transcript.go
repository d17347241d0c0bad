package agentloop

import (
	"github.com/martinemde/steploop/unifiedllm"
)

// Message is one role-tagged transcript entry.
type Message struct {
	Role    unifiedllm.Role `json:"role"`
	Content string          `json:"content"`
}

// Transcript is the ordered message history sent to the model on every turn.
// The first message is always the system prompt. Transcripts are values:
// Append returns a new transcript and never modifies the receiver.
type Transcript struct {
	messages []Message
}

// NewTranscript starts a transcript with the system prompt and user query.
func NewTranscript(systemPrompt, query string) Transcript {
	return Transcript{messages: []Message{
		{Role: unifiedllm.RoleSystem, Content: systemPrompt},
		{Role: unifiedllm.RoleUser, Content: query},
	}}
}

// Append returns a copy of t with msgs added at the end.
func (t Transcript) Append(msgs ...Message) Transcript {
	next := make([]Message, 0, len(t.messages)+len(msgs))
	next = append(next, t.messages...)
	next = append(next, msgs...)
	return Transcript{messages: next}
}

// Len returns the number of messages.
func (t Transcript) Len() int { return len(t.messages) }

// Messages returns a copy of the messages.
func (t Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the final message and false if the transcript is empty.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// SystemPrompt returns the content of the first message.
func (t Transcript) SystemPrompt() string {
	if len(t.messages) == 0 {
		return ""
	}
	return t.messages[0].Content
}

// ToLLMMessages converts the transcript for a model request.
func (t Transcript) ToLLMMessages() []unifiedllm.Message {
	out := make([]unifiedllm.Message, 0, len(t.messages))
	for _, m := range t.messages {
		switch m.Role {
		case unifiedllm.RoleSystem:
			out = append(out, unifiedllm.SystemMessage(m.Content))
		case unifiedllm.RoleAssistant:
			out = append(out, unifiedllm.AssistantMessage(m.Content))
		default:
			out = append(out, unifiedllm.UserMessage(m.Content))
		}
	}
	return out
}

// Actions returns the ACTION steps recorded in assistant messages, oldest
// first. Messages that do not parse are skipped.
func (t Transcript) Actions() []Step {
	var actions []Step
	for _, m := range t.messages {
		if m.Role != unifiedllm.RoleAssistant {
			continue
		}
		step, err := ParseStep(m.Content)
		if err == nil && step.Kind == StepAction {
			actions = append(actions, step)
		}
	}
	return actions
}

func assistantMessage(content string) Message {
	return Message{Role: unifiedllm.RoleAssistant, Content: content}
}

func observeMessage(content string) Message {
	return Message{Role: unifiedllm.RoleUser, Content: ObserveMessage(content)}
}

// Outcome is the state a run is in after a turn.
type Outcome string

const (
	OutcomeAwaitingTurn        Outcome = "awaiting_turn"
	OutcomeOutputReturned      Outcome = "output_returned"
	OutcomeParseFailed         Outcome = "parse_failed"
	OutcomeFatalCallError      Outcome = "fatal_call_error"
	OutcomeStepBudgetExhausted Outcome = "step_budget_exhausted"
)

// Terminal reports whether no further turns follow.
func (o Outcome) Terminal() bool {
	return o != OutcomeAwaitingTurn
}

// RunState is the complete state of one query. It is threaded through
// Agent.Turn by value.
type RunState struct {
	ID         string           `json:"id"`
	Transcript Transcript       `json:"-"`
	Step       int              `json:"step"`
	MaxSteps   int              `json:"max_steps"`
	Usage      unifiedllm.Usage `json:"usage"`
}

// NewRunState creates the initial state for a query.
func NewRunState(id, systemPrompt, query string, maxSteps int) RunState {
	return RunState{
		ID:         id,
		Transcript: NewTranscript(systemPrompt, query),
		MaxSteps:   maxSteps,
	}
}

// BudgetExhausted reports whether every allowed model call has been made.
func (s RunState) BudgetExhausted() bool {
	return s.Step >= s.MaxSteps
}
