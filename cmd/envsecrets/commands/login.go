package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/envsecrets/internal/config"
	"github.com/systmms/envsecrets/internal/validation"
)

func NewLoginCommand(opts *Options) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a provider credential in the OS keyring",
		Long: `Store a provider credential in the OS keyring so it does not need to
live in envsecrets.yaml or the environment.

The credential is read from --token or, if omitted, from stdin. Lookup
order at resolution time is: config file, ENVSECRETS_TOKEN, keyring.

Examples:
  envsecrets login --app api --token svc_live_abc123
  echo "$TOKEN" | envsecrets login --app api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfig(); err != nil {
				return err
			}

			appName, err := opts.Config.ResolveApplicationName(opts.App)
			if err != nil {
				return err
			}

			if token == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, readErr := reader.ReadString('\n')
				if readErr != nil && line == "" {
					return fmt.Errorf("failed to read token: %w", readErr)
				}
				token = strings.TrimSpace(line)
			}

			if err := validation.ValidateCredential(token); err != nil {
				return err
			}

			if err := config.StoreCredential(appName, token); err != nil {
				return fmt.Errorf("failed to store credential in keyring: %w", err)
			}

			opts.Config.Logger.Info("Credential stored for application '%s'", appName)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Credential to store (read from stdin when omitted)")

	return cmd
}
