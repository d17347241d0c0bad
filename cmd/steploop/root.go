package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/martinemde/steploop/agentloop"
	"github.com/martinemde/steploop/config"
)

type rootFlags struct {
	configPath  string
	provider    string
	model       string
	apiKey      string
	baseURL     string
	variant     string
	workDir     string
	logLevel    string
	logOutput   string
	maxSteps    int
	retries     int
	temperature float64
	noDocs      bool
	jsonOutput  bool
}

func rootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "steploop [query...]",
		Short: "Answer a query with a THINK/ACTION/OBSERVE/OUTPUT step loop",
		Long: "steploop sends the query to a chat model that replies with one JSON step per turn.\n" +
			"ACTION steps run local tools and their results are fed back as OBSERVE steps\n" +
			"until the model emits OUTPUT or the step budget is spent.",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				query = config.DefaultQuery
			}
			return runQuery(cmd, f, query)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&f.variant, "variant", "", "tool variant: basic or workspace")
	pf.StringVar(&f.workDir, "workdir", "", "working directory for tools (default: current directory)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&f.logOutput, "log-output", "", "log destination: stdout or stderr")

	fl := cmd.Flags()
	fl.StringVar(&f.provider, "provider", "", "LLM provider (openai, anthropic, ...)")
	fl.StringVarP(&f.model, "model", "m", "", "model ID or alias")
	fl.StringVar(&f.apiKey, "api-key", "", "provider API key")
	fl.StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible endpoint")
	fl.IntVarP(&f.maxSteps, "max-steps", "n", 0, "maximum model calls per run")
	fl.IntVar(&f.retries, "retries", 0, "retries for transient model call failures")
	fl.Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	fl.BoolVar(&f.noDocs, "no-project-docs", false, "skip AGENTS.md and STEPLOOP.md")
	fl.BoolVar(&f.jsonOutput, "json", false, "print the run result as JSON")

	cmd.AddCommand(toolsCmd(f))
	cmd.AddCommand(modelsCmd())
	cmd.AddCommand(promptCmd(f))
	cmd.AddCommand(configCmd(f))
	return cmd
}

// loadConfig reads the config file and environment, then applies the flags
// the user actually set before validating.
func loadConfig(cmd *cobra.Command, f *rootFlags) (*config.Config, error) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	return config.Load(f.configPath, func(cfg *config.Config) {
		if changed("provider") && !strings.EqualFold(strings.TrimSpace(f.provider), strings.TrimSpace(cfg.Provider)) {
			cfg.Provider = f.provider
			// A key configured for the old provider does not carry over.
			cfg.APIKey = ""
		}
		if changed("model") {
			cfg.Model = f.model
		}
		if changed("api-key") {
			cfg.APIKey = f.apiKey
		}
		if changed("base-url") {
			cfg.BaseURL = f.baseURL
		}
		if changed("variant") {
			cfg.Variant = f.variant
		}
		if changed("workdir") {
			cfg.WorkingDir = f.workDir
		}
		if changed("log-level") {
			cfg.LogLevel = f.logLevel
		}
		if changed("log-output") {
			cfg.LogOutput = f.logOutput
		}
		if changed("max-steps") {
			cfg.MaxSteps = f.maxSteps
		}
		if changed("retries") {
			cfg.MaxRetries = f.retries
		}
		if changed("temperature") {
			t := f.temperature
			cfg.Temperature = &t
		}
		if changed("no-project-docs") {
			cfg.ProjectDocs = !f.noDocs
		}
	})
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func newAgent(cfg *config.Config, logger *slog.Logger) (*agentloop.Agent, error) {
	variant, err := agentloop.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	profile, err := agentloop.NewProfile(variant, cfg.Model, cfg.ToolOptions())
	if err != nil {
		return nil, err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	env := agentloop.NewLocalExecutionEnvironment(cfg.WorkingDir)
	return agentloop.NewAgent(profile, env,
		agentloop.WithConfig(cfg.AgentConfig()),
		agentloop.WithClient(client),
		agentloop.WithLogger(logger),
	), nil
}

type runSummary struct {
	RunID        string `json:"run_id"`
	Outcome      string `json:"outcome"`
	Output       string `json:"output,omitempty"`
	Error        string `json:"error,omitempty"`
	Steps        int    `json:"steps"`
	MaxSteps     int    `json:"max_steps"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

func runQuery(cmd *cobra.Command, f *rootFlags, query string) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	// Progress logs share stdout with the answer unless the JSON summary
	// needs stdout to itself.
	logOut := cmd.OutOrStdout()
	if cfg.LogOutput == "stderr" || f.jsonOutput {
		logOut = cmd.ErrOrStderr()
	}
	logger := newLogger(logOut, cfg)

	agent, err := newAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer agent.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := agent.Run(ctx, query)

	out := cmd.OutOrStdout()
	if f.jsonOutput {
		summary := runSummary{
			RunID:        result.RunID,
			Outcome:      string(result.Outcome),
			Output:       result.Output,
			Steps:        result.State.Step,
			MaxSteps:     result.State.MaxSteps,
			InputTokens:  result.State.Usage.InputTokens,
			OutputTokens: result.State.Usage.OutputTokens,
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		data, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Fprintln(out, string(data))
		return runErr
	}

	switch result.Outcome {
	case agentloop.OutcomeOutputReturned:
		fmt.Fprintln(out, result.Output)
	case agentloop.OutcomeStepBudgetExhausted:
		fmt.Fprintf(cmd.ErrOrStderr(), "No OUTPUT after %d steps\n", result.State.MaxSteps)
	}
	return runErr
}
