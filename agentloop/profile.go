package agentloop

import (
	"fmt"
	"strings"
)

// Variant names a tool set and its matching prompt.
type Variant string

const (
	// VariantBasic offers getWeatherInfo, executeCommand and readFile.
	VariantBasic Variant = "basic"
	// VariantWorkspace offers readFile, writeFile, executeCommand and
	// createDirectory for building files in the working directory.
	VariantWorkspace Variant = "workspace"
)

// Variants lists the supported variants.
func Variants() []Variant {
	return []Variant{VariantBasic, VariantWorkspace}
}

// ParseVariant validates a variant name.
func ParseVariant(name string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Variants() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown tool variant %q (want basic or workspace)", name)
}

// Profile pairs a fixed tool registry with the system prompt describing it.
type Profile interface {
	Variant() Variant

	// ModelID returns the model identifier sent with each request.
	ModelID() string

	ToolRegistry() *ToolRegistry

	// BuildSystemPrompt constructs the system prompt from environment
	// context and project documentation.
	BuildSystemPrompt(env ExecutionEnvironment, projectDocs string) string
}

// BaseProfile provides common profile fields.
type BaseProfile struct {
	variant  Variant
	model    string
	registry *ToolRegistry
}

func (p *BaseProfile) Variant() Variant            { return p.variant }
func (p *BaseProfile) ModelID() string             { return p.model }
func (p *BaseProfile) ToolRegistry() *ToolRegistry { return p.registry }

// NewProfile returns the profile for a variant.
func NewProfile(variant Variant, model string, opts ToolOptions) (Profile, error) {
	switch variant {
	case VariantBasic:
		return NewBasicProfile(model, opts), nil
	case VariantWorkspace:
		return NewWorkspaceProfile(model, opts), nil
	}
	return nil, fmt.Errorf("unknown tool variant %q", variant)
}
