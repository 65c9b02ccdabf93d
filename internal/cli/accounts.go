package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bankcore/internal/domain"
	"bankcore/internal/service"
)

func accountsCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "accounts",
		Short: "Open, list, rename and close accounts",
	}
	c.AddCommand(accountsOpenCmd(rt), accountsListCmd(rt), accountsRenameCmd(rt), accountsCloseCmd(rt))
	return c
}

func accountsOpenCmd(rt *runtime) *cobra.Command {
	var name, kind string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a checking or savings account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			account, err := a.Accounts.Open(cmd.Context(), actorID, name, domain.AccountType(kind))
			if err != nil {
				return err
			}
			printAccounts(cmd.OutOrStdout(), []domain.Account{*account})
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "account name")
	cmd.Flags().StringVar(&kind, "type", string(domain.AccountTypeChecking), "checking or savings")
	return cmd
}

func accountsListCmd(rt *runtime) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your accounts, or a client's when you are staff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			accounts, err := a.Accounts.ListForOwner(cmd.Context(), actorID, owner)
			if err != nil {
				return err
			}
			printAccounts(cmd.OutOrStdout(), accounts)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	return cmd
}

func accountsRenameCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ACCOUNT_ID NAME",
		Short: "Rename an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Accounts.Rename(cmd.Context(), actorID, args[0], args[1])
		},
	}
}

func accountsCloseCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "close ACCOUNT_ID",
		Short: "Close an empty account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Accounts.Close(cmd.Context(), actorID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
			return nil
		},
	}
}

// cashCmd builds deposit and withdraw, which only differ in direction.
func cashCmd(rt *runtime, use, short string, deposit bool) *cobra.Command {
	var accountID, amount string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMoney("amount", amount)
			if err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			var tx *domain.Transaction
			if deposit {
				tx, err = a.Ledger.Deposit(cmd.Context(), actorID, accountID, m)
			} else {
				tx, err = a.Ledger.Withdraw(cmd.Context(), actorID, accountID, m)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", tx.ID, tx.Kind, tx.Amount)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in euros, e.g. 12.50")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func depositCmd(rt *runtime) *cobra.Command {
	return cashCmd(rt, "deposit", "Deposit cash on one of your accounts", true)
}

func withdrawCmd(rt *runtime) *cobra.Command {
	return cashCmd(rt, "withdraw", "Withdraw cash from one of your accounts", false)
}

func transferCmd(rt *runtime) *cobra.Command {
	var req service.TransferRequest
	var amount string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer money to any IBAN of the bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMoney("amount", amount)
			if err != nil {
				return err
			}
			req.Amount = m
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			tx, err := a.Ledger.Transfer(cmd.Context(), actorID, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s transferred %s\n", tx.ID, tx.Amount)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.FromAccountID, "from", "", "source account id")
	cmd.Flags().StringVar(&req.ToIBAN, "to", "", "beneficiary IBAN")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in euros")
	cmd.Flags().StringVar(&req.Label, "label", "", "label shown on both statements")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func historyCmd(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history ACCOUNT_ID",
		Short: "Show the latest postings of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			txs, err := a.Ledger.History(cmd.Context(), actorID, args[0], limit)
			if err != nil {
				return err
			}
			printTransactions(cmd.OutOrStdout(), args[0], txs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of postings")
	return cmd
}
