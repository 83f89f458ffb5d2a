package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/execenv"
)

func NewRunCommand(opts *Options) *cobra.Command {
	var (
		printVars     bool
		allowOverride bool
		workingDir    string
		timeout       int
	)

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command with secrets injected into its environment",
		Long: `Resolve secrets and launch a child process with them injected as
environment variables. Secrets never touch disk; the child inherits them
through its environment only.

The command must be separated from envsecrets arguments with '--'.

Examples:
  envsecrets run -- npm start
  envsecrets run --env production -- ./server
  envsecrets run --print -- python app.py`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return eserrors.ConfigurationError{
					Field:      "command",
					Message:    "no command specified",
					Suggestion: "Use: envsecrets run -- <command> [args...]",
				}
			}

			c, err := opts.buildClient()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := context.Background()
			secrets, err := c.GetSecrets(ctx)
			if err != nil {
				return err
			}
			opts.Config.Logger.Debug("resolved %d secrets for child process", len(secrets))

			executor := execenv.New(opts.Config.Logger)
			code, err := executor.Run(ctx, execenv.Options{
				Command:       args,
				Secrets:       secrets,
				AllowOverride: allowOverride,
				PrintVars:     printVars,
				WorkingDir:    workingDir,
				Timeout:       timeout,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				// Erase cached secrets before mirroring the child's exit
				// code; os.Exit skips deferred calls.
				c.Close()
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printVars, "print", false, "Print injected variables (values masked)")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "Let existing environment variables win over secrets")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "Working directory for the command")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Command timeout in seconds (0 for no timeout)")

	return cmd
}
