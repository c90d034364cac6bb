package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"cascade/pkg/domain"

	"github.com/spf13/cobra"
)

// newEscalationsCmd creates the "cascade escalations" subcommand group.
func newEscalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "List and work escalations",
	}
	cmd.AddCommand(
		newEscalationsListCmd(),
		newEscalationTransitionCmd("ack", "Acknowledge an escalation", domain.EscalationAcknowledged),
		newEscalationTransitionCmd("start", "Mark an escalation as being worked", domain.EscalationInProgress),
		newEscalationTransitionCmd("resolve", "Resolve an escalation", domain.EscalationResolved),
		newEscalationTransitionCmd("dismiss", "Dismiss an escalation", domain.EscalationDismissed),
	)
	return cmd
}

func newEscalationsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			escs, err := s.Escalations(cmd.Context(), domain.EscalationStatus(status))
			if err != nil {
				return err
			}
			if len(escs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no escalations")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASK\tSTATUS\tTO\tCREATED\tREASON")
			for _, esc := range escs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					esc.ID, esc.TaskID, esc.Status,
					strings.Join(esc.EscalatedTo, ","),
					esc.CreatedAt.Format("2006-01-02 15:04"),
					esc.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, acknowledged, in_progress, resolved, dismissed)")
	return cmd
}

func newEscalationTransitionCmd(use, short string, to domain.EscalationStatus) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   use + " <escalation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.TransitionEscalation(cmd.Context(), args[0], to, notes, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "escalation %s -> %s\n", args[0], to)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	return cmd
}
