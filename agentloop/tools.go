package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool names understood by the loop.
const (
	ToolReadFile        = "readFile"
	ToolWriteFile       = "writeFile"
	ToolExecuteCommand  = "executeCommand"
	ToolCreateDirectory = "createDirectory"
	ToolGetWeatherInfo  = "getWeatherInfo"
)

// ToolExecutor runs a tool with the raw ACTION input. Failures that belong to
// the tool's contract (missing file, refused command) are returned as the
// result string; a non-nil error means the input itself was unusable.
type ToolExecutor func(ctx context.Context, input json.RawMessage, env ExecutionEnvironment) (string, error)

// ToolDefinition describes a tool for the system prompt.
type ToolDefinition struct {
	Name        string `json:"name"`
	Signature   string `json:"signature"`
	Description string `json:"description"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor
}

// UnknownToolError is returned by Invoke for a name outside the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Tool %s not available", e.Name)
}

// ToolRegistry is a fixed set of tools. It has no mutators; a registry is
// built once per profile and shared read-only by every run.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
}

// NewToolRegistry builds a registry. Later tools with a duplicate name
// replace earlier ones.
func NewToolRegistry(tools ...RegisteredTool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]*RegisteredTool, len(tools))}
	for _, tool := range tools {
		tool := tool
		name := tool.Definition.Name
		if _, exists := r.tools[name]; !exists {
			r.order = append(r.order, name)
		}
		r.tools[name] = &tool
	}
	return r
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	return r.tools[name]
}

// Definitions returns tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	return len(r.tools)
}

// Invoke runs the named tool. An unknown name yields *UnknownToolError.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, input json.RawMessage, env ExecutionEnvironment) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &UnknownToolError{Name: name}
	}
	return tool.Executor(ctx, input, env)
}

// stringInput extracts a single string argument. The input may be a JSON
// string or an object holding the value under one of keys.
func stringInput(input json.RawMessage, keys ...string) (string, error) {
	var s string
	if err := json.Unmarshal(input, &s); err == nil {
		return s, nil
	}
	args, err := parseToolArguments(input)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		if v, ok := getStringArg(args, key); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("expected a string or an object with one of: %s", strings.Join(keys, ", "))
}

// parseToolArguments unmarshals an object input into a map.
func parseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool input: %w", err)
	}
	if args == nil {
		return nil, fmt.Errorf("invalid tool input: expected an object")
	}
	return args, nil
}

func getStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// firstStringArg returns the first key present as a string.
func firstStringArg(args map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := getStringArg(args, key); ok {
			return v, true
		}
	}
	return "", false
}
