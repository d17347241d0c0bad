package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// ToolOptions configures the command tool.
type ToolOptions struct {
	CommandTimeout time.Duration
	Policy         *CommandPolicy
}

// DefaultToolOptions returns a 10 second timeout and the default deny-list.
func DefaultToolOptions() ToolOptions {
	return ToolOptions{
		CommandTimeout: 10 * time.Second,
		Policy:         NewCommandPolicy(),
	}
}

func (o ToolOptions) withDefaults() ToolOptions {
	if o.Policy == nil {
		o.Policy = NewCommandPolicy()
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultToolOptions().CommandTimeout
	}
	return o
}

var pathKeys = []string{"path", "filename", "filepath", "file_path", "file"}

// ReadFileTool returns file contents, or an error string when the file is
// missing or unreadable.
func ReadFileTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolReadFile,
			Signature:   "readFile(filename)",
			Description: "Read a text file and return its contents. Input is the file path.",
		},
		Executor: func(_ context.Context, input json.RawMessage, env ExecutionEnvironment) (string, error) {
			path, err := stringInput(input, pathKeys...)
			if err != nil {
				return "", err
			}
			content, err := env.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Sprintf("Error reading file: %s: file not found", path), nil
			}
			if err != nil {
				return fmt.Sprintf("Error reading file: %v", err), nil
			}
			return content, nil
		},
	}
}

// writeFileInput is the decoded writeFile argument.
type writeFileInput struct {
	Path    string
	Content string
}

// decodeWriteFileInput accepts an object or a JSON string holding a
// serialized object.
func decodeWriteFileInput(input json.RawMessage) (writeFileInput, error) {
	raw := input
	var serialized string
	if err := json.Unmarshal(input, &serialized); err == nil {
		raw = json.RawMessage(serialized)
	}
	args, err := parseToolArguments(raw)
	if err != nil {
		return writeFileInput{}, fmt.Errorf("writeFile expects {\"path\": ..., \"content\": ...}: %w", err)
	}
	path, ok := firstStringArg(args, pathKeys...)
	if !ok || strings.TrimSpace(path) == "" {
		return writeFileInput{}, errors.New("writeFile requires a path")
	}
	content, ok := firstStringArg(args, "content", "contents", "data", "text")
	if !ok {
		return writeFileInput{}, errors.New("writeFile requires content")
	}
	return writeFileInput{Path: path, Content: content}, nil
}

// WriteFileTool creates or overwrites a file.
func WriteFileTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolWriteFile,
			Signature:   `writeFile({"path": "...", "content": "..."})`,
			Description: "Create or overwrite a file with the given content. Parent directories are created.",
		},
		Executor: func(_ context.Context, input json.RawMessage, env ExecutionEnvironment) (string, error) {
			in, err := decodeWriteFileInput(input)
			if err != nil {
				return "", err
			}
			if err := env.WriteFile(in.Path, in.Content); err != nil {
				return fmt.Sprintf("Error writing file: %v", err), nil
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(in.Content), in.Path), nil
		},
	}
}

// CreateDirectoryTool creates a directory and any missing parents.
func CreateDirectoryTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolCreateDirectory,
			Signature:   "createDirectory(path)",
			Description: "Create a directory, including missing parents. Succeeds if it already exists.",
		},
		Executor: func(_ context.Context, input json.RawMessage, env ExecutionEnvironment) (string, error) {
			path, err := stringInput(input, append([]string{"dir", "directory"}, pathKeys...)...)
			if err != nil {
				return "", err
			}
			if err := env.CreateDirectory(path); err != nil {
				return fmt.Sprintf("Error creating directory: %v", err), nil
			}
			return fmt.Sprintf("Directory ready: %s", path), nil
		},
	}
}

// ExecuteCommandTool runs a shell command after checking it against the
// deny-list. Refused commands never reach the shell.
func ExecuteCommandTool(opts ToolOptions) RegisteredTool {
	opts = opts.withDefaults()
	desc := fmt.Sprintf("Run a shell command in the working directory and return stdout and stderr. "+
		"Commands time out after %s. Destructive commands are refused.", opts.CommandTimeout)
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolExecuteCommand,
			Signature:   "executeCommand(command)",
			Description: desc,
		},
		Executor: func(ctx context.Context, input json.RawMessage, env ExecutionEnvironment) (string, error) {
			command, err := stringInput(input, "command", "cmd")
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(command) == "" {
				return "", errors.New("executeCommand requires a command")
			}
			if pattern, blocked := opts.Policy.Check(command); blocked {
				return fmt.Sprintf("Error: command blocked by safety policy (matched %q)", pattern), nil
			}

			result, err := env.ExecCommand(ctx, command, opts.CommandTimeout)
			if err != nil {
				return fmt.Sprintf("Error executing command: %v", err), nil
			}
			return formatExecResult(result, opts.CommandTimeout), nil
		},
	}
}

func formatExecResult(result *ExecResult, timeout time.Duration) string {
	output := fmt.Sprintf("stdout: %s\nstderr: %s", result.Stdout, result.Stderr)
	switch {
	case result.TimedOut:
		return fmt.Sprintf("Error: command timed out after %s\n%s", timeout, output)
	case result.ExitCode != 0:
		return fmt.Sprintf("Error: command exited with code %d\n%s", result.ExitCode, output)
	}
	return output
}

// GetWeatherInfoTool returns a canned weather report.
func GetWeatherInfoTool() RegisteredTool {
	return RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolGetWeatherInfo,
			Signature:   "getWeatherInfo(city)",
			Description: "Get the current weather for a city.",
		},
		Executor: func(_ context.Context, input json.RawMessage, _ ExecutionEnvironment) (string, error) {
			city, err := stringInput(input, "city", "cityname", "name")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s has 32 Degree C", city), nil
		},
	}
}
