package main

import (
	"fmt"
	"io"

	"cascade/pkg/bottleneck"
	"cascade/pkg/domain"
	"cascade/pkg/graph"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newBottlenecksCmd creates the "cascade bottlenecks" subcommand group.
func newBottlenecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bottlenecks",
		Short: "Detect and report dependency bottlenecks",
	}
	cmd.AddCommand(newBottlenecksAnalyzeCmd(), newBottlenecksListCmd())
	return cmd
}

func newBottlenecksAnalyzeCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score active tasks and record bottleneck findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			edges, err := s.Edges(ctx)
			if err != nil {
				return fmt.Errorf("load dependencies: %w", err)
			}
			g, err := graph.NewFromEdges(edges)
			if err != nil {
				return fmt.Errorf("rebuild dependency graph: %w", err)
			}

			found, err := bottleneck.New(g, s, s).Analyze(ctx, projectID)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			printBottlenecks(cmd.OutOrStdout(), found)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "limit analysis to one project")
	return cmd
}

func newBottlenecksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show open bottleneck findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			open, err := s.OpenBottlenecks(cmd.Context())
			if err != nil {
				return err
			}
			printBottlenecks(cmd.OutOrStdout(), open)
			return nil
		},
	}
}

func printBottlenecks(w io.Writer, found []domain.Bottleneck) {
	if len(found) == 0 {
		fmt.Fprintln(w, "no bottlenecks")
		return
	}
	for _, b := range found {
		fmt.Fprintf(w, "%s  %s\n", severityLabel(b.Severity), b.TaskID)
		fmt.Fprintf(w, "    blocking %d tasks, cascade delay %.1f days, delay probability %.0f%%\n",
			b.BlockingCount, b.CascadeDelayDays, b.DelayProbability*100)
		for _, a := range b.SuggestedActions {
			fmt.Fprintf(w, "    - %s\n", a.Description)
		}
	}
}

func severityLabel(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case domain.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH    ")
	case domain.SeverityMedium:
		return color.New(color.FgYellow).Sprint("MEDIUM  ")
	default:
		return color.New(color.FgGreen).Sprint("LOW     ")
	}
}
