package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bankcore/internal/domain"
	"bankcore/internal/service"
)

type termsFlags struct {
	principal string
	rate      string
	insurance string
	months    int
}

func (f *termsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.principal, "principal", "", "borrowed amount")
	cmd.Flags().StringVar(&f.rate, "rate", "0", "annual interest rate, percent")
	cmd.Flags().StringVar(&f.insurance, "insurance", "0", "annual insurance rate, percent of the principal")
	cmd.Flags().IntVar(&f.months, "months", 0, "duration in months")
	_ = cmd.MarkFlagRequired("principal")
	_ = cmd.MarkFlagRequired("months")
}

func (f *termsFlags) terms() (domain.Terms, error) {
	principal, err := parseMoney("principal", f.principal)
	if err != nil {
		return domain.Terms{}, err
	}
	rate, err := decimal.NewFromString(f.rate)
	if err != nil {
		return domain.Terms{}, fmt.Errorf("--rate %q: %w", f.rate, domain.ErrInvalidInput)
	}
	insurance, err := decimal.NewFromString(f.insurance)
	if err != nil {
		return domain.Terms{}, fmt.Errorf("--insurance %q: %w", f.insurance, domain.ErrInvalidInput)
	}
	return domain.Terms{Principal: principal, AnnualRate: rate, InsuranceRate: insurance, Months: f.months}, nil
}

func creditsCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "credits",
		Short: "Grant, simulate and follow loans",
	}
	c.AddCommand(creditsGrantCmd(rt), creditsSimulateCmd(rt), creditsShowCmd(rt), creditsListCmd(rt), creditsCollectCmd(rt))
	return c
}

func creditsGrantCmd(rt *runtime) *cobra.Command {
	var f termsFlags
	var clientID, accountID string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a loan to one of your clients (advisors and directors)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			terms, err := f.terms()
			if err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			credit, err := a.Credits.Grant(cmd.Context(), actorID, service.CreditRequest{
				ClientID:      clientID,
				AccountID:     accountID,
				Principal:     terms.Principal,
				AnnualRate:    terms.AnnualRate,
				InsuranceRate: terms.InsuranceRate,
				Months:        terms.Months,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credit %s: %s over %d months, %s per month, first due %s\n",
				credit.ID, credit.Principal, credit.Months, credit.MonthlyPayment.Add(credit.MonthlyInsurance), day(credit.NextDueDate))
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&accountID, "account", "", "account receiving the funds and paying installments")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func creditsSimulateCmd(rt *runtime) *cobra.Command {
	var f termsFlags
	var start string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Print the amortization schedule of a loan without granting it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			terms, err := f.terms()
			if err != nil {
				return err
			}
			if start != "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("--start %q: %w", start, domain.ErrInvalidInput)
				}
				terms.Start = t
			}
			a, err := rt.services(cmd.Context())
			if err != nil {
				return err
			}
			schedule, err := a.Credits.Simulate(terms)
			if err != nil {
				return err
			}
			printSchedule(cmd.OutOrStdout(), schedule)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&start, "start", "", "start date, YYYY-MM-DD (default today)")
	return cmd
}

func creditsShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show CREDIT_ID",
		Short: "Show a credit and its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			credit, err := a.Credits.Get(cmd.Context(), actorID, args[0])
			if err != nil {
				return err
			}
			schedule, err := a.Credits.Schedule(cmd.Context(), actorID, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "credit %s  %s  remaining %s  paid %d/%d  next due %s\n",
				credit.ID, credit.Status, credit.Remaining, credit.PaidInstallments, credit.Months, day(credit.NextDueDate))
			printSchedule(out, schedule)
			return nil
		},
	}
}

func creditsListCmd(rt *runtime) *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the credits of a client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			if clientID == "" {
				clientID = actorID
			}
			credits, err := a.Credits.ListForClient(cmd.Context(), actorID, clientID)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tPRINCIPAL\tRATE\tMONTHS\tREMAINING\tNEXT DUE\tSTATUS")
			for _, c := range credits {
				fmt.Fprintf(tw, "%s\t%s\t%s%%\t%d\t%s\t%s\t%s\n",
					c.ID, c.Principal, c.AnnualRate.String(), c.Months, c.Remaining, day(c.NextDueDate), c.Status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id (defaults to yourself)")
	return cmd
}

func creditsCollectCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Debit every installment due today (directors only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := rt.director(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Credits.CollectDue(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d due, %d collected, %d overdue, %d repaid, %s\n",
				report.Due, report.Collected, report.Overdue, report.Repaid, report.Total)
			return nil
		},
	}
}
