package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewCacheCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the in-memory secret cache",
		Long: `Inspect and manage the in-memory secret cache.

The cache lives in process memory only, so these commands report on the
cache of the current invocation. Long-running embedders of the client see
the same numbers through CacheStats.`,
	}

	cmd.AddCommand(
		newCacheStatsCommand(opts),
		newCacheClearCommand(opts),
	)
	return cmd
}

func newCacheStatsCommand(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.buildClient()
			if err != nil {
				return err
			}
			defer c.Close()

			stats := c.CacheStats()
			out := cmd.OutOrStdout()

			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(stats)
			}

			fmt.Fprintf(out, "Entries:      %d\n", stats.Entries)
			fmt.Fprintf(out, "Memory:       %.2f MB / %.0f MB (%.1f%%)\n",
				stats.MemoryUsageMB, stats.MaxMemoryMB, stats.PercentUsed)
			fmt.Fprintf(out, "TTL:          %ds\n", stats.TTLSeconds)
			fmt.Fprintf(out, "Evictions:    %d\n", stats.EvictionCount)
			fmt.Fprintf(out, "Health:       %s\n", stats.HealthStatus)
			if len(stats.Environments) > 0 {
				fmt.Fprintf(out, "Environments: %s\n", strings.Join(stats.Environments, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCacheClearCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Securely erase all cached secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.buildClient()
			if err != nil {
				return err
			}
			defer c.Close()

			c.ClearCache()
			opts.Config.Logger.Info("Cache cleared")
			return nil
		},
	}
}
