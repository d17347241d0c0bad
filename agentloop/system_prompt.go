package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// projectDocFiles are loaded from the git root down to the working directory.
var projectDocFiles = []string{"AGENTS.md", "STEPLOOP.md"}

type stepPromptParts struct {
	intro       string
	environment string
	tools       []ToolDefinition
	rules       []string
	examples    string
	projectDocs string
}

var stepRules = []string{
	"Output only a single JSON object in the format shown below.",
	"One step per response.",
	"After an ACTION, wait for the OBSERVE message before the next step.",
	"Never emit an OBSERVE step yourself.",
}

func buildStepPrompt(p stepPromptParts) string {
	var sb strings.Builder
	sb.WriteString(p.intro)
	sb.WriteString("\n\n")

	sb.WriteString(p.environment)
	sb.WriteString("\n\n")

	sb.WriteString("Available Tools:\n")
	for _, def := range p.tools {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Signature, def.Description)
	}
	sb.WriteString("\n")

	sb.WriteString("Rules:\n")
	for _, rule := range append(append([]string{}, stepRules...), p.rules...) {
		fmt.Fprintf(&sb, "- %s\n", rule)
	}
	sb.WriteString("\n")

	sb.WriteString("Output Format:\n")
	sb.WriteString(`{"step": "THINK|ACTION|OUTPUT", "tool": "tool_name", "input": "parameter", "content": "text"}`)
	sb.WriteString("\n\n")

	sb.WriteString("Examples:\n\n")
	sb.WriteString(p.examples)
	sb.WriteString("\n")

	if p.projectDocs != "" {
		sb.WriteString("\n# Project Instructions\n\n")
		sb.WriteString(p.projectDocs)
		sb.WriteString("\n")
	}
	return sb.String()
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env ExecutionEnvironment, model string) string {
	workingDir := env.WorkingDirectory()
	isGitRepo := isGitRepository(workingDir)
	gitBranch := ""
	if isGitRepo {
		gitBranch = getGitBranch(workingDir)
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if gitBranch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", gitBranch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads project instruction files from the git root (or
// the working directory) down to the working directory, capped at 32KB.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	totalBytes := 0
	for _, dir := range collectPathHierarchy(root, workingDir) {
		for _, fileName := range projectDocFiles {
			content, err := os.ReadFile(filepath.Join(dir, fileName))
			if err != nil {
				continue
			}

			remaining := maxProjectDocBytes - totalBytes
			if remaining <= 0 {
				docs = append(docs, "[Project instructions truncated at 32KB]")
				return strings.Join(docs, "\n\n---\n\n")
			}

			text := string(content)
			if len(text) > remaining {
				text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
			}
			docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", fileName, dir, text))
			totalBytes += len(text)
		}
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	dirs := []string{root}
	if root == target {
		return dirs
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dirs
	}

	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	return strings.TrimSpace(gitOutput(dir, "rev-parse", "--is-inside-work-tree")) == "true"
}

func gitRoot(dir string) string {
	return strings.TrimSpace(gitOutput(dir, "rev-parse", "--show-toplevel"))
}

func getGitBranch(dir string) string {
	return strings.TrimSpace(gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD"))
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
