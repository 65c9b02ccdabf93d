package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
)

func TestDepositWithdraw(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, acc := e.client(t, "alice@example.com")

	e.deposit(t, alice, acc, "150.00")
	_, err := e.ledger.Withdraw(ctx, alice.ID, acc.ID, domain.MustMoney("30.50"))
	require.NoError(t, err)
	assert.Equal(t, "119.50", e.balance(t, acc.ID))

	_, err = e.ledger.Withdraw(ctx, alice.ID, acc.ID, domain.MustMoney("119.51"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = e.ledger.Deposit(ctx, alice.ID, acc.ID, domain.Money{})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, "119.50", e.balance(t, acc.ID))

	history, err := e.ledger.History(ctx, alice.ID, acc.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TxWithdrawal, history[0].Kind)
	assert.Equal(t, "-30.50", history[0].Signed(acc.ID))
}

func TestDepositRejectsAmountsBeyondLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, acc := e.client(t, "alice@example.com")

	_, err := domain.NewMoney("200000000000000000")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = e.ledger.Deposit(ctx, alice.ID, acc.ID, domain.MaxMoney.Add(domain.MustMoney("0.01")))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, "0.00", e.balance(t, acc.ID))

	tx, err := e.ledger.Deposit(ctx, alice.ID, acc.ID, domain.MustMoney("900000000000"))
	require.NoError(t, err)
	assert.Equal(t, "900000000000.00", tx.Amount.Amount())
	_, err = e.ledger.Deposit(ctx, alice.ID, acc.ID, domain.MustMoney("900000000000"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, "900000000000.00", e.balance(t, acc.ID))
}

func TestOnlyOwnerMovesMoney(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, acc := e.client(t, "alice@example.com")
	mallory, _ := e.client(t, "mallory@example.com")

	_, err := e.ledger.Deposit(ctx, mallory.ID, acc.ID, domain.MustMoney("10"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.ledger.History(ctx, mallory.ID, acc.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// staff may read but not move
	_, err = e.ledger.History(ctx, e.director.ID, acc.ID, 0)
	assert.NoError(t, err)
	_, err = e.ledger.Deposit(ctx, e.director.ID, acc.ID, domain.MustMoney("10"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestTransfer(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, from := e.client(t, "alice@example.com")
	bob, to := e.client(t, "bob@example.com")
	e.deposit(t, alice, from, "100.00")

	tx, err := e.ledger.Transfer(ctx, alice.ID, TransferRequest{
		FromAccountID: from.ID,
		ToIBAN:        to.IBAN.Format(),
		Amount:        domain.MustMoney("40.25"),
		Label:         "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxTransfer, tx.Kind)
	assert.Equal(t, "59.75", e.balance(t, from.ID))
	assert.Equal(t, "40.25", e.balance(t, to.ID))

	received := e.notificationsOf(t, bob.ID, domain.NotifyTransferReceived)
	require.Len(t, received, 1)
	assert.Contains(t, received[0].Body, "40.25 EUR")
}

func TestTransferFailuresLeaveBalancesUntouched(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, from := e.client(t, "alice@example.com")
	bob, to := e.client(t, "bob@example.com")
	e.deposit(t, alice, from, "50.00")

	savings, err := e.accounts.Open(ctx, bob.ID, "Livret", domain.AccountTypeSavings)
	require.NoError(t, err)
	require.NoError(t, e.accounts.Close(ctx, bob.ID, savings.ID))

	unknown, err := domain.GenerateIBAN("99999", "00001", "00000000001")
	require.NoError(t, err)

	cases := []struct {
		name string
		req  TransferRequest
		want error
	}{
		{"more than balance", TransferRequest{FromAccountID: from.ID, ToIBAN: to.IBAN.String(), Amount: domain.MustMoney("50.01")}, domain.ErrInsufficientFunds},
		{"same account", TransferRequest{FromAccountID: from.ID, ToIBAN: from.IBAN.String(), Amount: domain.MustMoney("1")}, domain.ErrSameAccount},
		{"bad checksum", TransferRequest{FromAccountID: from.ID, ToIBAN: "FR7630006000011234567890188", Amount: domain.MustMoney("1")}, domain.ErrInvalidIBAN},
		{"closed beneficiary", TransferRequest{FromAccountID: from.ID, ToIBAN: savings.IBAN.String(), Amount: domain.MustMoney("1")}, domain.ErrAccountClosed},
		{"unknown beneficiary", TransferRequest{FromAccountID: from.ID, ToIBAN: unknown.String(), Amount: domain.MustMoney("1")}, domain.ErrNotFound},
		{"zero amount", TransferRequest{FromAccountID: from.ID, ToIBAN: to.IBAN.String()}, domain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.ledger.Transfer(ctx, alice.ID, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, "50.00", e.balance(t, from.ID))
			assert.Equal(t, "0.00", e.balance(t, to.ID))
		})
	}
}

func TestBannedClientCannotTransfer(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, from := e.client(t, "alice@example.com")
	_, to := e.client(t, "bob@example.com")
	e.deposit(t, alice, from, "20.00")
	require.NoError(t, e.users.Ban(ctx, e.director.ID, alice.ID))

	_, err := e.ledger.Transfer(ctx, alice.ID, TransferRequest{FromAccountID: from.ID, ToIBAN: to.IBAN.String(), Amount: domain.MustMoney("5")})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "20.00", e.balance(t, from.ID))
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, a := e.client(t, "alice@example.com")
	bob, b := e.client(t, "bob@example.com")
	e.deposit(t, alice, a, "100.00")
	e.deposit(t, bob, b, "100.00")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.ledger.Transfer(ctx, alice.ID, TransferRequest{FromAccountID: a.ID, ToIBAN: b.IBAN.String(), Amount: domain.MustMoney("7.00")})
		}()
		go func() {
			defer wg.Done()
			_, _ = e.ledger.Transfer(ctx, bob.ID, TransferRequest{FromAccountID: b.ID, ToIBAN: a.IBAN.String(), Amount: domain.MustMoney("11.00")})
		}()
	}
	wg.Wait()

	ab, err := e.accountRepo.Get(ctx, a.ID)
	require.NoError(t, err)
	bb, err := e.accountRepo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", ab.Balance.Add(bb.Balance).Amount())
}

func TestCloseAccountNeedsZeroBalance(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, acc := e.client(t, "alice@example.com")
	e.deposit(t, alice, acc, "1.00")

	assert.ErrorIs(t, e.accounts.Close(ctx, alice.ID, acc.ID), domain.ErrAccountNotEmpty)
	_, err := e.ledger.Withdraw(ctx, alice.ID, acc.ID, domain.MustMoney("1.00"))
	require.NoError(t, err)
	require.NoError(t, e.accounts.Close(ctx, alice.ID, acc.ID))

	_, err = e.ledger.Deposit(ctx, alice.ID, acc.ID, domain.MustMoney("1.00"))
	assert.ErrorIs(t, err, domain.ErrAccountClosed)
	assert.ErrorIs(t, e.accounts.Close(ctx, alice.ID, acc.ID), domain.ErrAccountClosed)
}

func TestRenameAndLookup(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, acc := e.client(t, "alice@example.com")

	require.NoError(t, e.accounts.Rename(ctx, alice.ID, acc.ID, "Daily"))
	got, err := e.accounts.GetByIBAN(ctx, acc.IBAN.Format())
	require.NoError(t, err)
	assert.Equal(t, "Daily", got.Name)
	assert.ErrorIs(t, e.accounts.Rename(ctx, alice.ID, acc.ID, "  "), domain.ErrInvalidInput)
}
