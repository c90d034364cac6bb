package main

import (
	"fmt"
	"text/tabwriter"

	"cascade/pkg/rules"

	"github.com/spf13/cobra"
)

// newRulesCmd creates the "cascade rules" subcommand group.
func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage workflow rules",
	}
	cmd.AddCommand(newRulesImportCmd(), newRulesListCmd())
	return cmd
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load rule files into the engine database",
		Long:  "Parses every .yaml/.yml file in the directory, validates the rules,\nand replaces the stored rule set. Execution stats survive for rules\nwhose id is unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			loaded, err := rules.LoadDir(args[0], validationEngine())
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			if err := s.ReplaceRules(cmd.Context(), loaded); err != nil {
				return fmt.Errorf("store rules: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", len(loaded))
			return nil
		},
	}
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			all, err := s.AllRules(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no rules stored")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tACTIVE\tRUNS\tLAST RUN")
			for _, r := range all {
				lastRun := "never"
				if r.LastExecutedAt != nil {
					lastRun = r.LastExecutedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%s\n",
					r.ID, r.Name, r.TriggerType, r.Active, r.ExecutionCount, lastRun)
			}
			return w.Flush()
		},
	}
}

// validationEngine builds a throwaway engine used only as the rule loader's
// condition/action registry.
func validationEngine() rules.Registry {
	return rules.New(rules.Deps{})
}
