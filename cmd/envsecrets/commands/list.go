package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/envsecrets/internal/logging"
)

func NewListCommand(opts *Options) *cobra.Command {
	var (
		showValues bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resolved secrets",
		Long: `Resolve secrets for the current environment and list them.

Values are masked by default; pass --show-values to print them in full.

Examples:
  envsecrets list
  envsecrets list --show-values
  envsecrets list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.buildClient()
			if err != nil {
				return err
			}
			defer c.Close()

			secrets, err := c.GetSecrets(context.Background())
			if err != nil {
				return err
			}

			display := make(map[string]string, len(secrets))
			for key, value := range secrets {
				if showValues {
					display[key] = value
				} else {
					display[key] = logging.RedactValue(value)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(display)
			}

			for _, key := range sortedKeys(display) {
				fmt.Fprintf(out, "%s=%s\n", key, display[key])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showValues, "show-values", false, "Print secret values in full")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
