package main

import (
	"fmt"
	"text/tabwriter"

	"cascade/pkg/domain"
	"cascade/pkg/graph"
	"cascade/pkg/timeline"

	"github.com/spf13/cobra"
)

// newDepsCmd creates the "cascade deps" subcommand group.
func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Manage task dependencies",
	}
	cmd.AddCommand(newDepsAddCmd(), newDepsRemoveCmd(), newDepsListCmd())
	return cmd
}

type depsAddConfig struct {
	depType    string
	lagDays    int
	autoAdjust bool
}

func newDepsAddCmd() *cobra.Command {
	var cfg depsAddConfig

	cmd := &cobra.Command{
		Use:   "add <predecessor> <successor>",
		Short: "Add a dependency edge between two tasks",
		Long:  "Adds a typed dependency edge. The edge is rejected if it would\nintroduce a cycle. Successor deadlines are recalculated immediately.",
		Args:  cobra.ExactArgs(2),
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

			edge := domain.Edge{
				PredecessorID: args[0],
				SuccessorID:   args[1],
				Type:          domain.DependencyType(cfg.depType),
				LagDays:       cfg.lagDays,
				AutoAdjust:    cfg.autoAdjust,
			}
			if err := g.AddEdge(edge); err != nil {
				return err
			}
			if err := s.SaveEdge(ctx, edge); err != nil {
				return err
			}

			adjusted, err := timeline.New(g, s).PropagateFrom(ctx, edge.PredecessorID)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "edge added; deadline recalculation skipped: %v\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "edge added; %d deadlines adjusted\n", len(adjusted))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.depType, "type", string(domain.FinishToStart), "dependency type (finish_to_start, start_to_start, finish_to_finish, start_to_finish)")
	cmd.Flags().IntVar(&cfg.lagDays, "lag", 0, "lag days (negative for lead time)")
	cmd.Flags().BoolVar(&cfg.autoAdjust, "auto-adjust", true, "ripple deadline changes across this edge")

	return cmd
}

func newDepsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <predecessor> <successor>",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteEdge(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "edge removed")
			return nil
		},
	}
}

func newDepsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dependency edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			edges, err := s.Edges(cmd.Context())
			if err != nil {
				return err
			}
			if len(edges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no dependencies")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PREDECESSOR\tSUCCESSOR\tTYPE\tLAG\tAUTO-ADJUST")
			for _, e := range edges {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n",
					e.PredecessorID, e.SuccessorID, e.Type, e.LagDays, e.AutoAdjust)
			}
			return w.Flush()
		},
	}
}
