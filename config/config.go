// Package config loads steploop settings from defaults, an optional YAML
// file and STEPLOOP_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/steploop/agentloop"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STEPLOOP_"

// DefaultQuery is used when no query is given on the command line.
const DefaultQuery = "what is inside my package.json file?"

// Config is the complete runtime configuration.
type Config struct {
	Provider       string        `yaml:"provider" env:"PROVIDER"`
	Model          string        `yaml:"model" env:"MODEL"`
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	Temperature    *float64      `yaml:"temperature" env:"TEMPERATURE"`
	MaxSteps       int           `yaml:"max_steps" env:"MAX_STEPS"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	Variant        string        `yaml:"variant" env:"VARIANT"`
	WorkingDir     string        `yaml:"working_dir" env:"WORKDIR"`
	DenyPatterns   []string      `yaml:"deny_patterns" env:"DENY_PATTERNS" envSeparator:","`
	ProjectDocs    bool          `yaml:"project_docs" env:"PROJECT_DOCS"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogOutput      string        `yaml:"log_output" env:"LOG_OUTPUT"` // stdout or stderr
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		MaxSteps:       5,
		CommandTimeout: 10 * time.Second,
		Variant:        string(agentloop.VariantWorkspace),
		ProjectDocs:    true,
		LogLevel:       "info",
		LogOutput:      "stdout",
	}
}

// providerKeyEnv lists the provider-specific variables consulted when no
// STEPLOOP_API_KEY is set.
var providerKeyEnv = map[string][]string{
	"openai":    {"MY_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"groq":      {"GROQ_API_KEY"},
	"mistral":   {"MISTRAL_API_KEY"},
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and any caller overrides, in order, and validates
// the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	for _, override := range overrides {
		override(cfg)
	}
	cfg.Normalize()
	cfg.ResolveAPIKey()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Normalize trims and lowercases the identifier fields.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Model = strings.TrimSpace(c.Model)
	c.Variant = strings.ToLower(strings.TrimSpace(c.Variant))
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.LogOutput = strings.ToLower(strings.TrimSpace(c.LogOutput))
}

// ResolveAPIKey fills an empty APIKey from the provider's usual variables.
func (c *Config) ResolveAPIKey() {
	if c.APIKey != "" {
		return
	}
	for _, name := range providerKeyEnv[c.Provider] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			c.APIKey = v
			return
		}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Provider) == "" {
		errs = append(errs, errors.New("provider is required"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command_timeout must not be negative, got %s", c.CommandTimeout))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %g", *c.Temperature))
	}
	if _, err := agentloop.ParseVariant(c.Variant); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogOutput != "" && c.LogOutput != "stdout" && c.LogOutput != "stderr" {
		errs = append(errs, fmt.Errorf("log_output must be stdout or stderr, got %q", c.LogOutput))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}

// ToolOptions returns the command tool settings.
func (c *Config) ToolOptions() agentloop.ToolOptions {
	return agentloop.ToolOptions{
		CommandTimeout: c.CommandTimeout,
		Policy:         agentloop.NewCommandPolicy(c.DenyPatterns...),
	}
}

// AgentConfig returns the loop settings.
func (c *Config) AgentConfig() agentloop.AgentConfig {
	cfg := agentloop.DefaultAgentConfig()
	cfg.MaxSteps = c.MaxSteps
	cfg.Provider = c.Provider
	cfg.Temperature = c.Temperature
	cfg.LoadProjectDocs = c.ProjectDocs
	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.APIKey != "" {
		out.APIKey = "***"
	}
	return out
}
