package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/update-manager/internal/config"
	"github.com/oshokin/update-manager/internal/service/manager"
	"github.com/oshokin/update-manager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile path where the update record is persisted.
	stateFile string

	// rootCmd represents the base command for running the sidecar.
	rootCmd = &cobra.Command{
		Use:   "update-manager [listen-address]",
		Short: "Run the update-manager sidecar HTTP API.",
		Long: `Starts the sidecar that pulls the latest sources and rebuilds the
project's services on demand.

The sidecar listens on the configured address (default :9090) and exposes
/health, /status and the authenticated POST /update trigger. The update record
is persisted to a JSON file so status survives restarts. The shared secret is
read from the ` + config.EnvSecret + ` environment variable.
Listen address can be provided as argument to override config (e.g., :9191, 0.0.0.0:9090).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &manager.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				StateFile:     stateFile,
			}

			return manager.Run(ctx, options)
		},
	}
)

// Execute runs the update-manager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&stateFile, "state-file", "s", "", "path to persist the update record (overrides config)")
}
