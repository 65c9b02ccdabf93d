package domain

import "time"

type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
)

func (t AccountType) Valid() bool {
	return t == AccountTypeChecking || t == AccountTypeSavings
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// Account is a client's bank account. Balance never goes below zero.
type Account struct {
	ID        string
	OwnerID   string
	IBAN      IBAN
	Name      string
	Type      AccountType
	Balance   Money
	Status    AccountStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) Active() bool {
	return a.Status == AccountStatusActive
}
