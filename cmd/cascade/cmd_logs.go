package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newLogsCmd creates the "cascade logs" subcommand.
func newLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent engine activity",
		Long:  "Displays entries from the append-only audit log: rule executions,\ndelivery outcomes, scan results, and rejected dependencies.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.RecentEvents(cmd.Context(), tail)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tSOURCE\tTASK\tRULE\tPAYLOAD")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.CreatedAt.Format("2006-01-02 15:04:05"),
					ev.Type, ev.Source, ev.TaskID, ev.RuleID, ev.Payload)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 20, "number of recent events to show")
	return cmd
}
