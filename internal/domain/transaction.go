package domain

import "time"

type TransactionKind string

const (
	TxDeposit            TransactionKind = "deposit"
	TxWithdrawal         TransactionKind = "withdrawal"
	TxTransfer           TransactionKind = "transfer"
	TxInterest           TransactionKind = "interest"
	TxStockTrade         TransactionKind = "stock_trade"
	TxFee                TransactionKind = "fee"
	TxCreditDisbursement TransactionKind = "credit_disbursement"
	TxCreditInstallment  TransactionKind = "credit_installment"
)

// Transaction is one double-entry posting: Amount leaves FromAccountID (when
// set) and lands on ToAccountID (when set). Money entering or leaving the bank
// has one side empty.
type Transaction struct {
	ID            string
	Kind          TransactionKind
	FromAccountID string
	ToAccountID   string
	Amount        Money
	Label         string
	// Reference is unique when set; it makes scheduled postings idempotent.
	Reference string
	CreatedAt time.Time
}

// Signed returns the amount as seen from accountID: negative when it is debited.
func (t *Transaction) Signed(accountID string) string {
	if t.FromAccountID == accountID && t.ToAccountID != accountID {
		return "-" + t.Amount.Amount()
	}
	return t.Amount.Amount()
}
