package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/steploop/agentloop"
	"github.com/martinemde/steploop/unifiedllm"
)

func toolsCmd(f *rootFlags) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered by a variant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			variant, err := agentloop.ParseVariant(cfg.Variant)
			if err != nil {
				return err
			}
			profile, err := agentloop.NewProfile(variant, cfg.Model, cfg.ToolOptions())
			if err != nil {
				return err
			}
			defs := profile.ToolRegistry().Definitions()

			if jsonOutput {
				data, _ := json.MarshalIndent(defs, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tSIGNATURE\tDESCRIPTION\n")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Signature, d.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func modelsCmd() *cobra.Command {
	var (
		provider   string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the built-in model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			models := unifiedllm.ListModels(strings.ToLower(provider))

			if jsonOutput {
				data, _ := json.MarshalIndent(models, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "MODEL\tPROVIDER\tCONTEXT\tJSON MODE\tALIASES\n")
			for _, m := range models {
				jsonMode := "no"
				if m.SupportsJSONMode {
					jsonMode = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					m.ID, m.Provider, m.ContextWindow, jsonMode, strings.Join(m.Aliases, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "only list this provider's models")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func promptCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt a run would start with",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			variant, err := agentloop.ParseVariant(cfg.Variant)
			if err != nil {
				return err
			}
			profile, err := agentloop.NewProfile(variant, cfg.Model, cfg.ToolOptions())
			if err != nil {
				return err
			}
			env := agentloop.NewLocalExecutionEnvironment(cfg.WorkingDir)
			docs := ""
			if cfg.ProjectDocs {
				docs = agentloop.DiscoverProjectDocs(env.WorkingDirectory())
			}
			fmt.Fprint(cmd.OutOrStdout(), profile.BuildSystemPrompt(env, docs))
			return nil
		},
	}
}

func configCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML (API key redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
