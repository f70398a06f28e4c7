package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/config"
	"github.com/rendis/stepflow/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "Stepflow - multi-step workflows for AI agents",
	Long: `Stepflow stores user-defined workflows and runs them step by step:
agent calls, conditions, transforms, delays, webhooks and context updates.

Quick Start:
  1. Define a workflow:    stepflow define -f greet.yaml
  2. Run it:               stepflow run <workflow-id> --context '{"name":"Ada"}'
  3. Inspect the run:      stepflow status <run-id>
  4. Serve MCP over stdio: stepflow serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		// stdout carries command output and the MCP transport.
		logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stepflow.yaml or $HOME/.stepflow/stepflow.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(defineCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(versionCmd)
}
