package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"bankcore/internal/domain"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func stamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printUser(w io.Writer, u *domain.User) {
	banned := ""
	if u.Banned {
		banned = " (banned)"
	}
	fmt.Fprintf(w, "%s  %s <%s>  %s%s\n", u.ID, u.FullName(), u.Email, u.Role, banned)
}

func printAccounts(w io.Writer, accounts []domain.Account) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tIBAN\tNAME\tTYPE\tBALANCE\tSTATUS")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.IBAN.Format(), a.Name, a.Type, a.Balance, a.Status)
	}
	tw.Flush()
}

func printTransactions(w io.Writer, accountID string, txs []domain.Transaction) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tKIND\tAMOUNT\tLABEL")
	for i := range txs {
		tx := &txs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", stamp(tx.CreatedAt), tx.Kind, tx.Signed(accountID), orDash(tx.Label))
	}
	tw.Flush()
}

func printOrders(w io.Writer, orders []domain.Order) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSIDE\tSTOCK\tQTY\tFILLED\tLIMIT\tSTATUS")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", o.ID, o.Side, o.StockID, o.Quantity, o.Filled, o.LimitPrice, o.Status)
	}
	tw.Flush()
}

func printSchedule(w io.Writer, s domain.Schedule) {
	fmt.Fprintf(w, "monthly payment %s, insurance %s, total interest %s, total cost %s\n",
		s.MonthlyPayment, s.MonthlyInsurance, s.TotalInterest(), s.TotalCost())
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tDUE\tPAYMENT\tINTEREST\tPRINCIPAL\tINSURANCE\tREMAINING")
	for _, in := range s.Installments {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			in.Number, day(in.DueDate), in.Payment.Amount(), in.Interest.Amount(), in.Principal.Amount(), in.Insurance.Amount(), in.Remaining.Amount())
	}
	tw.Flush()
}
