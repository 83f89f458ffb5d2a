package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	eserrors "github.com/systmms/envsecrets/internal/errors"
)

func NewGetCommand(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a single secret value",
		Long: `Resolve secrets for the current environment and print one value.

By default only the raw value is printed, making it suitable for scripting.

Examples:
  envsecrets get DATABASE_URL
  export DB_URL=$(envsecrets get --app api --env production DATABASE_URL)
  envsecrets get API_KEY --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			c, err := opts.buildClient()
			if err != nil {
				return err
			}
			defer c.Close()

			value, ok, err := c.GetSecret(context.Background(), key)
			if err != nil {
				return err
			}
			if !ok {
				return eserrors.ConfigurationError{
					Field:      "key",
					Value:      key,
					Message:    fmt.Sprintf("secret not found in environment '%s'", c.ResolveEnvironment()),
					Suggestion: "Run 'envsecrets list' to see the available keys",
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(map[string]string{
					"key":         key,
					"value":       value,
					"environment": c.ResolveEnvironment(),
				})
			}

			fmt.Fprint(out, value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON with metadata")

	return cmd
}
