package main

import (
	"fmt"

	"cascade/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root cascade command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cascade",
		Short:         "Dependency-aware task scheduling and workflow automation",
		Long:          "cascade tracks task dependencies, ripples deadline changes through the\ndependency graph, detects bottlenecks, and runs user-defined workflow rules.",
		Version:       fmt.Sprintf("cascade %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().String("config", "cascade.toml", "path to the TOML config file")

	cmd.AddCommand(
		newServeCmd(),
		newRulesCmd(),
		newDepsCmd(),
		newBottlenecksCmd(),
		newEscalationsCmd(),
		newLogsCmd(),
	)

	return cmd
}
