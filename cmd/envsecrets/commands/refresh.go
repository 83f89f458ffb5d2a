package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func NewRefreshCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a re-fetch for the resolved environment",
		Long: `Drop the cached entry for the resolved environment and fetch fresh
secrets from the provider.

Examples:
  envsecrets refresh
  envsecrets refresh --env production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.buildClient()
			if err != nil {
				return err
			}
			defer c.Close()

			secrets, err := c.Refresh(context.Background())
			if err != nil {
				return err
			}

			opts.Config.Logger.Info("Refreshed %d secrets for environment '%s'", len(secrets), c.ResolveEnvironment())
			return nil
		},
	}
}
