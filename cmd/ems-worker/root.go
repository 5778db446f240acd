package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRootCommand builds the ems-worker CLI: a single binary that serves
// the OGC API - Processes / WPS HTTP surface (spec.md §6), applies
// database migrations, and validates a configuration file, mirroring the
// teacher's separate cmd/cli and cmd/worker split collapsed into one
// cobra tree since this service has no analogous end-user CLI surface.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ems-worker",
		Short: "EMS/ADES workflow execution service",
		Long:  "Runs the OGC API - Processes / WPS execution management service in EMS or ADES mode (spec.md).",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadAppConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "Config file path")

	if err := bindRootFlags(cmd); err != nil {
		cmd.PrintErrln(fmt.Sprintf("failed to bind flags: %v", err))
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newValidateConfigCommand())

	return cmd
}
