package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/envsecrets/internal/envresolver"
)

func NewEnvCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the resolved deployment environment",
		Long: `Print the deployment environment this process would resolve to.

Resolution checks, in order: the per-application signal
(ENVSECRETS_ENV__<APP>), the environment map, the global signal
(ENVSECRETS_ENV), the configured environment, platform auto-detection
(Vercel, GitHub Actions, Kubernetes, APP_ENV), and finally 'development'.

Examples:
  envsecrets env
  envsecrets env --app api
  ENVSECRETS_ENV=staging envsecrets env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfig(); err != nil {
				return err
			}

			// The application name only scopes the per-app signal here, so
			// a missing one is fine.
			appName, _ := opts.Config.ResolveApplicationName(opts.App)

			resolver := envresolver.New(envresolver.OSContext{})
			env := resolver.Resolve(envresolver.Options{
				AppName:    appName,
				GlobalEnv:  opts.environment(),
				EnvMap:     joinEnvMap(opts.Config.Definition.EnvMap),
				AutoDetect: true,
			})

			fmt.Fprintln(cmd.OutOrStdout(), env)
			return nil
		},
	}
}
