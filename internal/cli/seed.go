package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bankcore/internal/seed"
)

func seedCmd(rt *runtime) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create staff, clients, stocks and a savings rate from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixtures, err := seed.Load(file)
			if err != nil {
				return err
			}
			a, err := rt.services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := seed.Apply(cmd.Context(), seed.Services{
				Users:    a.Users,
				Accounts: a.Accounts,
				Ledger:   a.Ledger,
				Savings:  a.Savings,
				Market:   a.Market,
			}, fixtures, a.Logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d advisors, %d clients, %d stocks, %d allotments created, rate changed: %t\n",
				report.Advisors, report.Clients, report.Stocks, report.Allotments, report.RateSet)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "fixture file")
	return cmd
}
