package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bankcore/internal/domain"
	"bankcore/internal/scheduler"
	"bankcore/internal/service"
)

// parseMonth reads YYYY-MM; empty means the previous calendar month.
func parseMonth(value string) (time.Time, error) {
	if value == "" {
		return scheduler.PreviousMonth(time.Now()), nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--month %q: %w", value, domain.ErrInvalidInput)
	}
	return t, nil
}

func statementsCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "statements",
		Short: "Monthly account statements",
	}
	c.AddCommand(statementsShowCmd(rt), statementsExportCmd(rt), statementsExportAllCmd(rt),
		statementsArchivedCmd(rt), statementsLinkCmd(rt))
	return c
}

func statementsShowCmd(rt *runtime) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "show ACCOUNT_ID",
		Short: "Print a monthly statement as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMonth(month)
			if err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.Statements.Build(cmd.Context(), actorID, args[0], m)
			if err != nil {
				return err
			}
			body, err := service.RenderCSV(st)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "YYYY-MM (default previous month)")
	return cmd
}

func statementsExportCmd(rt *runtime) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export ACCOUNT_ID",
		Short: "Store a monthly statement in object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMonth(month)
			if err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			location, err := a.Statements.Export(cmd.Context(), actorID, args[0], m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "YYYY-MM (default previous month)")
	return cmd
}

func statementsExportAllCmd(rt *runtime) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export-all",
		Short: "Export the statements of every account (directors only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMonth(month)
			if err != nil {
				return err
			}
			a, _, err := rt.director(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Statements.ExportAll(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d exported, %d failed\n", report.Month, report.Exported, report.Failed)
			for _, loc := range report.Locations {
				fmt.Fprintln(cmd.OutOrStdout(), loc)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "YYYY-MM (default previous month)")
	return cmd
}

func statementsArchivedCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "archived ACCOUNT_ID",
		Short: "List the exported statements of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			list, err := a.Statements.Archived(cmd.Context(), actorID, args[0])
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "MONTH\tSIZE\tSTORED\tKEY")
			for _, st := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", st.Month, st.Size, stamp(st.StoredAt), st.Key)
			}
			return w.Flush()
		},
	}
}

func statementsLinkCmd(rt *runtime) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "link ACCOUNT_ID",
		Short: "Print a download link for an exported statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMonth(month)
			if err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			url, err := a.Statements.Link(cmd.Context(), actorID, args[0], m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "YYYY-MM (default previous month)")
	return cmd
}
