package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bankcore/internal/domain"
)

func savingsCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "savings",
		Short: "Savings rate and interest",
	}
	c.AddCommand(savingsSetRateCmd(rt), savingsRateCmd(rt), savingsAccrueCmd(rt))
	return c
}

func savingsSetRateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate PERCENT",
		Short: "Set the annual savings rate (directors only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("rate %q: %w", args[0], domain.ErrInvalidInput)
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			r, err := a.Savings.SetRate(cmd.Context(), actorID, rate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "savings rate is now %s%% since %s\n", r.Rate.String(), stamp(r.EffectiveAt))
			return nil
		},
	}
}

func savingsRateCmd(rt *runtime) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Show the current savings rate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.services(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				r, err := a.Savings.CurrentRate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%%\n", r.Rate.String())
				return nil
			}
			rates, err := a.Savings.History(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "SINCE\tRATE\tSET BY")
			for _, r := range rates {
				fmt.Fprintf(tw, "%s\t%s%%\t%s\n", stamp(r.EffectiveAt), r.Rate.String(), r.SetBy)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "history", false, "list every rate ever set")
	return cmd
}

func savingsAccrueCmd(rt *runtime) *cobra.Command {
	var on string
	cmd := &cobra.Command{
		Use:   "accrue",
		Short: "Credit one day of interest to every savings account (directors only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at := time.Now()
			if on != "" {
				t, err := time.Parse("2006-01-02", on)
				if err != nil {
					return fmt.Errorf("--day %q: %w", on, domain.ErrInvalidInput)
				}
				at = t
			}
			a, _, err := rt.director(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Savings.AccrueDailyInterest(cmd.Context(), at)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d accounts, %d credited, %d skipped, %s\n",
				report.Day, report.Accounts, report.Credited, report.Skipped, report.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&on, "day", "", "day to accrue, YYYY-MM-DD (default today)")
	return cmd
}
