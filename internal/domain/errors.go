package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrSameAccount        = errors.New("source and destination accounts are the same")
	ErrInvalidIBAN        = errors.New("invalid iban")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrAccountClosed      = errors.New("account is closed")
	ErrAccountNotEmpty    = errors.New("account balance is not zero")
)

// ErrorKind is a coarse classification used by callers that must not depend on
// individual sentinels (CLI exit codes, log levels).
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInvalid           ErrorKind = "invalid"
	KindForbidden         ErrorKind = "forbidden"
	KindConflict          ErrorKind = "conflict"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindInternal          ErrorKind = "internal"
)

// Kind classifies err by walking its wrap chain. A nil error has no kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAccountNotEmpty), errors.Is(err, ErrAccountClosed),
		errors.Is(err, ErrInsufficientShares):
		return KindConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidIBAN), errors.Is(err, ErrSameAccount):
		return KindInvalid
	default:
		return KindInternal
	}
}
