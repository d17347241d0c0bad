package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultToolCharLimits caps the OBSERVE content of each tool.
var DefaultToolCharLimits = map[string]int{
	ToolReadFile:        50000,
	ToolExecuteCommand:  30000,
	ToolWriteFile:       1000,
	ToolCreateDirectory: 1000,
	ToolGetWeatherInfo:  1000,
}

// DefaultTruncationModes selects the truncation mode per tool.
var DefaultTruncationModes = map[string]TruncationMode{
	ToolReadFile:        TruncateHeadTail,
	ToolExecuteCommand:  TruncateHeadTail,
	ToolWriteFile:       TruncateTail,
	ToolCreateDirectory: TruncateTail,
	ToolGetWeatherInfo:  TruncateTail,
}

// DefaultToolLineLimits are applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	ToolExecuteCommand: 256,
}

const fallbackCharLimit = 30000

// TruncateOutput cuts output to about maxChars bytes and says how much was
// removed. Cuts never split a UTF-8 sequence.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	if mode == TruncateTail {
		tail := output[runeStart(output, len(output)-maxChars):]
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", len(output)-len(tail)) + tail
	}

	half := maxChars / 2
	head := output[:runeStart(output, half)]
	tail := output[runeStart(output, len(output)-half):]
	removed := len(output) - len(head) - len(tail)
	return head +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need specific parts, run a more targeted command.]\n\n", removed) +
		tail
}

// runeStart moves i back to the start of the UTF-8 sequence containing it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character then line truncation for a tool.
// Overrides take precedence over the defaults.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}
