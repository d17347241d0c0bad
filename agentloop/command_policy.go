package agentloop

import (
	"strings"

	"github.com/mattn/go-shellwords"
)

// DefaultDenyPatterns are destructive command fragments that are never run.
var DefaultDenyPatterns = []string{
	"rm -rf",
	"rm -fr",
	"rm -r ",
	"del /f",
	"del /s",
	"del /q",
	"rd /s",
	"rmdir /s",
	"format c:",
	"mkfs",
	"dd if=",
	"diskpart",
	":(){",
	"shutdown",
	"reboot",
	"poweroff",
	"> /dev/sd",
	"chmod -r 777 /",
}

// CommandPolicy decides whether a command may be executed.
type CommandPolicy struct {
	patterns []string
}

// NewCommandPolicy returns the default deny-list plus extra patterns.
func NewCommandPolicy(extra ...string) *CommandPolicy {
	patterns := make([]string, 0, len(DefaultDenyPatterns)+len(extra))
	for _, p := range append(append([]string{}, DefaultDenyPatterns...), extra...) {
		p = strings.ToLower(p)
		if strings.TrimSpace(p) != "" {
			patterns = append(patterns, p)
		}
	}
	return &CommandPolicy{patterns: patterns}
}

// Patterns returns the active deny patterns.
func (p *CommandPolicy) Patterns() []string {
	out := make([]string, len(p.patterns))
	copy(out, p.patterns)
	return out
}

// Check returns the first matching deny pattern. Matching is
// case-insensitive and runs against both the raw command and its
// shell-tokenized form, so extra whitespace or quoting does not evade it.
func (p *CommandPolicy) Check(command string) (string, bool) {
	candidates := []string{strings.ToLower(command)}
	if normalized := normalizeCommand(command); normalized != "" {
		candidates = append(candidates, normalized+" ")
	}
	for _, pattern := range p.patterns {
		for _, c := range candidates {
			if strings.Contains(c, pattern) {
				return pattern, true
			}
		}
	}
	return "", false
}

func normalizeCommand(command string) string {
	parser := shellwords.NewParser()
	words, err := parser.Parse(command)
	if err != nil || len(words) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(words, " "))
}
