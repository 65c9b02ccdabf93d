package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bankcore/internal/domain"
)

func ibanCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "iban",
		Short: "Validate or generate IBANs (offline)",
	}
	c.AddCommand(ibanValidateCmd(), ibanGenerateCmd())
	return c
}

func ibanValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate IBAN...",
		Short: "Check an IBAN's country, length and checksum",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iban, err := domain.ParseIBAN(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s valid (%s)\n", iban.Format(), iban.Country())
			return nil
		},
	}
}

func ibanGenerateCmd() *cobra.Command {
	var bank, branch, account string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a French IBAN from bank details",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account == "" {
				n, err := domain.NewAccountNumber()
				if err != nil {
					return err
				}
				account = n
			}
			iban, err := domain.GenerateIBAN(bank, branch, account)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), iban.Format())
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "30004", "5 digit bank code")
	cmd.Flags().StringVar(&branch, "branch", "00001", "5 digit branch code")
	cmd.Flags().StringVar(&account, "account", "", "11 character account number (random when empty)")
	return cmd
}
