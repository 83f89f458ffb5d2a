package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/envsecrets/cmd/envsecrets/commands"
	"github.com/systmms/envsecrets/internal/config"
	"github.com/systmms/envsecrets/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		noColor    bool
	)

	opts := &commands.Options{}

	rootCmd := &cobra.Command{
		Use:   "envsecrets",
		Short: "Resolve and cache application secrets",
		Long: `envsecrets resolves your application's secrets for the current deployment
environment, caches them in memory with secure erasure, and injects them
into child processes without ever touching disk.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(opts.Debug, noColor)
			opts.Config = &config.Config{
				Path:   configFile,
				Logger: logger,
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "envsecrets.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&opts.App, "app", "", "Application name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.Env, "env", "", "Environment name or 'auto' (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&opts.Strict, "strict", false, "Fail when required secrets are missing")
	rootCmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "Record Prometheus metrics")

	rootCmd.AddCommand(
		commands.NewEnvCommand(opts),
		commands.NewListCommand(opts),
		commands.NewGetCommand(opts),
		commands.NewRunCommand(opts),
		commands.NewRefreshCommand(opts),
		commands.NewCacheCommand(opts),
		commands.NewLoginCommand(opts),
	)

	return rootCmd.Execute()
}
