// SCLAB SQL Server Connector
//
// This is the main entry point for the connector. The connector turns
// configured SQL query items into HTTP endpoints and broker telemetry
// streams:
//   - api items are served on GET <endpoint>
//   - mqtt items are polled on an interval and published to a topic
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnvVar names the environment variable holding the config file path.
const configEnvVar = "CONNECTOR_CONFIG"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Env        string
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// newRootCommand creates the connector command tree.
// Running the root command without a subcommand serves.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "connector",
		Short:         "SQL query items as HTTP endpoints and telemetry streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file (default $"+configEnvVar+")")
	cmd.PersistentFlags().StringVar(&opts.Env, "env", "", "environment name selecting .env.<env>.local (default $CONNECTOR_ENV or development)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "connector %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// configPath returns the --config flag, or CONNECTOR_CONFIG when unset.
// An empty result means environment-only configuration.
func (o *rootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return os.Getenv(configEnvVar)
}
