package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ibanLengths lists the countries the bank accepts as transfer destinations.
var ibanLengths = map[string]int{
	"AT": 20, "BE": 16, "CH": 21, "DE": 22, "ES": 24, "FR": 27, "GB": 22,
	"IE": 22, "IT": 27, "LU": 20, "MC": 27, "NL": 18, "PT": 25,
}

// IBAN is a validated International Bank Account Number in electronic form.
type IBAN struct {
	value string
}

// ParseIBAN normalises s (spaces removed, upper case) and validates country,
// length, character set and the mod-97 checksum.
func ParseIBAN(s string) (IBAN, error) {
	v := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(v) < 5 {
		return IBAN{}, fmt.Errorf("%q too short: %w", s, ErrInvalidIBAN)
	}
	want, ok := ibanLengths[v[:2]]
	if !ok {
		return IBAN{}, fmt.Errorf("unsupported country %q: %w", v[:2], ErrInvalidIBAN)
	}
	if len(v) != want {
		return IBAN{}, fmt.Errorf("%s iban must have %d characters: %w", v[:2], want, ErrInvalidIBAN)
	}
	if !isDigit(v[2]) || !isDigit(v[3]) {
		return IBAN{}, fmt.Errorf("check digits must be numeric: %w", ErrInvalidIBAN)
	}
	for i := 0; i < len(v); i++ {
		if !isDigit(v[i]) && !isUpper(v[i]) {
			return IBAN{}, fmt.Errorf("invalid character %q: %w", v[i], ErrInvalidIBAN)
		}
	}
	if mod97(v[4:]+v[:4]) != 1 {
		return IBAN{}, fmt.Errorf("checksum mismatch: %w", ErrInvalidIBAN)
	}
	return IBAN{value: v}, nil
}

// MustIBAN panics when s is not a valid IBAN.
func MustIBAN(s string) IBAN {
	iban, err := ParseIBAN(s)
	if err != nil {
		panic(err)
	}
	return iban
}

// GenerateIBAN builds a French IBAN from a 5 digit bank code, a 5 digit branch
// code and an 11 character account number, computing the RIB key and the
// ISO 7064 check digits.
func GenerateIBAN(bankCode, branchCode, accountNumber string) (IBAN, error) {
	accountNumber = strings.ToUpper(accountNumber)
	if len(bankCode) != 5 || !allDigits(bankCode) {
		return IBAN{}, fmt.Errorf("bank code %q: %w", bankCode, ErrInvalidInput)
	}
	if len(branchCode) != 5 || !allDigits(branchCode) {
		return IBAN{}, fmt.Errorf("branch code %q: %w", branchCode, ErrInvalidInput)
	}
	if len(accountNumber) != 11 {
		return IBAN{}, fmt.Errorf("account number %q: %w", accountNumber, ErrInvalidInput)
	}
	key, err := ribKey(bankCode, branchCode, accountNumber)
	if err != nil {
		return IBAN{}, err
	}
	bban := bankCode + branchCode + accountNumber + fmt.Sprintf("%02d", key)
	check := 98 - mod97(bban+"FR00")
	return ParseIBAN(fmt.Sprintf("FR%02d%s", check, bban))
}

// NewAccountNumber returns 11 random decimal digits.
func NewAccountNumber() (string, error) {
	var b strings.Builder
	for i := 0; i < 11; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("random account number: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func (i IBAN) String() string { return i.value }

func (i IBAN) IsZero() bool { return i.value == "" }

func (i IBAN) Country() string {
	if len(i.value) < 2 {
		return ""
	}
	return i.value[:2]
}

// Format groups the IBAN in blocks of four characters.
func (i IBAN) Format() string {
	var b strings.Builder
	for n := 0; n < len(i.value); n += 4 {
		if n > 0 {
			b.WriteByte(' ')
		}
		end := n + 4
		if end > len(i.value) {
			end = len(i.value)
		}
		b.WriteString(i.value[n:end])
	}
	return b.String()
}

// mod97 computes the remainder of the numeric rewrite of s (A=10 ... Z=35)
// digit by digit so arbitrarily long inputs stay within int range.
func mod97(s string) int {
	r := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isDigit(c):
			r = (r*10 + int(c-'0')) % 97
		case isUpper(c):
			r = (r*100 + int(c-'A') + 10) % 97
		}
	}
	return r
}

// ribKey implements the French "clé RIB": letters in the account number map to
// digits 1-9 in groups (A/J, B/K/S, ...).
func ribKey(bank, branch, account string) (int, error) {
	var digits strings.Builder
	for i := 0; i < len(account); i++ {
		c := account[i]
		switch {
		case isDigit(c):
			digits.WriteByte(c)
		case isUpper(c):
			digits.WriteByte(ribLetter(c))
		default:
			return 0, fmt.Errorf("account number character %q: %w", c, ErrInvalidInput)
		}
	}
	b, _ := strconv.ParseInt(bank, 10, 64)
	g, _ := strconv.ParseInt(branch, 10, 64)
	a, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("account number: %w", ErrInvalidInput)
	}
	return int(97 - (89*b+15*g+3*a)%97), nil
}

func ribLetter(c byte) byte {
	switch {
	case c <= 'I':
		return '1' + (c - 'A')
	case c <= 'R':
		return '1' + (c - 'J')
	default:
		return '2' + (c - 'S')
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
