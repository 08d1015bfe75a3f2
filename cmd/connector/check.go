package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCheckCommand creates the check command.
func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and query definitions without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}
}

// runCheck parses every query definition and prints one line per item.
// It fails when the configuration or any definition is invalid.
func runCheck(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	registry, errs := parseQueries(cfg)
	for _, item := range registry.Items() {
		fmt.Fprintf(out, "ok       %s: %s\n", item.Source, item)
	}
	for _, parseErr := range errs {
		fmt.Fprintf(out, "invalid  %v\n", parseErr)
	}
	fmt.Fprintf(out, "%d valid, %d invalid\n", registry.Len(), len(errs))

	if len(errs) > 0 {
		return fmt.Errorf("%d invalid query definitions", len(errs))
	}
	return nil
}
