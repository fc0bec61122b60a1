package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chatflow",
	Short:         "chatflow runs chatbot conversations defined as flow graphs",
	Long:          `chatflow interprets flow graphs of messages, questions, conditions and API calls, serving them over HTTP or in the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a TOML configuration file (default ./chatflow.toml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format override: text or json")
}

// loadConfig reads the configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return cfg, cli.NewLogger(cfg.Log.Level, cfg.Log.Format), nil
}
