package agentloop

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StepKind is the value of the "step" field of a model turn.
type StepKind string

const (
	StepThink   StepKind = "THINK"
	StepAction  StepKind = "ACTION"
	StepObserve StepKind = "OBSERVE"
	StepOutput  StepKind = "OUTPUT"
)

// Step is one validated model turn. Kinds other than THINK, ACTION and
// OUTPUT are unrecognized steps; OBSERVE is produced by the loop only.
type Step struct {
	Kind    StepKind        `json:"step"`
	Tool    string          `json:"tool,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content string          `json:"content,omitempty"`
}

// Recognized reports whether the model emitted a step the loop acts on.
func (s Step) Recognized() bool {
	switch s.Kind {
	case StepThink, StepAction, StepOutput:
		return true
	}
	return false
}

// InputText returns the ACTION input as text: JSON strings are unquoted,
// structured values are returned as compact JSON.
func (s Step) InputText() string {
	if len(s.Input) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(s.Input, &str); err == nil {
		return str
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, s.Input); err != nil {
		return string(s.Input)
	}
	return buf.String()
}

// ParseError reports model output that is not a valid step.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse step: %s: %v", e.Reason, e.Err)
	}
	return "parse step: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

type wireStep struct {
	Step    json.RawMessage `json:"step"`
	Tool    json.RawMessage `json:"tool"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
}

// ParseStep validates raw model output as a single step object. Unknown
// fields are ignored. A missing or non-string "step" value yields an
// unrecognized step rather than an error.
func ParseStep(raw string) (Step, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Step{}, &ParseError{Raw: raw, Reason: "expected a JSON object"}
	}

	var w wireStep
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Step{}, &ParseError{Raw: raw, Reason: "invalid JSON", Err: err}
	}

	var step Step
	if kind, ok := jsonString(w.Step); ok {
		step.Kind = StepKind(kind)
	}
	if content, ok := textValue(w.Content); ok {
		step.Content = content
	}

	switch step.Kind {
	case StepAction:
		// An empty name is left for the registry to reject as unknown.
		tool, ok := jsonString(w.Tool)
		if !ok {
			return Step{}, &ParseError{Raw: raw, Reason: "ACTION step requires a tool name"}
		}
		if isAbsent(w.Input) {
			return Step{}, &ParseError{Raw: raw, Reason: "ACTION step requires an input"}
		}
		step.Tool = tool
		step.Input = append(json.RawMessage(nil), w.Input...)
	case StepThink, StepOutput:
		if isAbsent(w.Content) {
			return Step{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("%s step requires content", step.Kind)}
		}
	}
	return step, nil
}

// ObserveMessage builds the OBSERVE envelope injected after a tool call.
func ObserveMessage(content string) string {
	data, _ := json.Marshal(struct {
		Step    StepKind `json:"step"`
		Content string   `json:"content"`
	}{StepObserve, content})
	return string(data)
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func jsonString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// textValue accepts a string or any other JSON value rendered as text.
func textValue(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", false
	}
	if s, ok := jsonString(raw); ok {
		return s, true
	}
	return string(raw), true
}
