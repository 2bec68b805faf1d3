package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geosift/geosift/cmd/geosift/commands"
	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/logger"
)

var rootCmd = &cobra.Command{
	Use:   "geosift",
	Short: "GeoSift - location aggregation from pluggable sources",
	Long: `GeoSift - aggregate location data from pluggable sources.

GeoSift drives source plugins through a rate-limited fetch pipeline,
standardizes what they return into a common location shape, and keeps
the results in cache and project files ready for export.

Available commands:
  run      - Fetch locations for targets through a plugin
  plugins  - List, inspect, install, and configure plugins
  project  - Manage project files (list, show, create, export, migrate)
  cache    - Inspect and clean the fetch result cache
  config   - Manage GeoSift configuration
  version  - Show version information

Examples:
  geosift plugins list                  # Show discovered plugins
  geosift run bsky alice.bsky.social    # Fetch locations for one target
  geosift project list                  # List projects in the workspace
  geosift cache prune                   # Drop expired cache entries`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")

		// A broken config still gets a working logger; the commands
		// that need config report the load error themselves
		jsonLogs := false
		if cfg, err := config.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PluginsCmd)
	rootCmd.AddCommand(commands.ProjectCmd)
	rootCmd.AddCommand(commands.CacheCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
