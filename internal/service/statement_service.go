package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
	"bankcore/internal/storage"
)

// StatementLine is one posting as it appears on a statement.
type StatementLine struct {
	Date   time.Time
	Kind   domain.TransactionKind
	Label  string
	Debit  domain.Money
	Credit domain.Money
}

// Statement is the monthly summary of one account.
type Statement struct {
	Account *domain.Account
	From    time.Time
	To      time.Time
	Opening domain.Money
	Closing domain.Money
	Lines   []StatementLine
}

// ExportReport summarises a bulk export run.
type ExportReport struct {
	Month     string
	Exported  int
	Failed    int
	Locations []string
}

// ArchivedStatement is a statement previously exported to the archive.
type ArchivedStatement struct {
	Month    string
	Key      string
	Size     int64
	StoredAt time.Time
}

// StatementOptions tell StatementService where exported statements go.
type StatementOptions struct {
	KeyPrefix string
	// LinkExpiry bounds the validity of download links.
	LinkExpiry time.Duration
}

type StatementService interface {
	Build(ctx context.Context, actorID, accountID string, month time.Time) (*Statement, error)
	// Export renders the statement as CSV and stores it; it returns the object location.
	Export(ctx context.Context, actorID, accountID string, month time.Time) (string, error)
	// ExportAll exports the statement of every active account.
	ExportAll(ctx context.Context, month time.Time) (ExportReport, error)
	// Archived lists the exported statements of an account, oldest month first.
	Archived(ctx context.Context, actorID, accountID string) ([]ArchivedStatement, error)
	// Link returns a temporary download URL for an exported statement.
	Link(ctx context.Context, actorID, accountID string, month time.Time) (string, error)
}

type statementService struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	ledger   repository.LedgerRepository
	store    storage.Archive
	opts     StatementOptions
	log      logrus.FieldLogger
}

func NewStatementService(users repository.UserRepository, accounts repository.AccountRepository, ledger repository.LedgerRepository,
	store storage.Archive, opts StatementOptions, log logrus.FieldLogger) StatementService {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "statements"
	}
	if opts.LinkExpiry <= 0 {
		opts.LinkExpiry = 15 * time.Minute
	}
	return &statementService{
		users:    users,
		accounts: accounts,
		ledger:   ledger,
		store:    store,
		opts:     opts,
		log:      defaultLogger(log),
	}
}

// monthBounds returns the first instant of month and of the following month, in UTC.
func monthBounds(month time.Time) (time.Time, time.Time) {
	m := month.UTC()
	from := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func (s *statementService) Build(ctx context.Context, actorID, accountID string, month time.Time) (*Statement, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	account, err := ownedAccount(ctx, s.accounts, actor, accountID, true)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, account, month)
}

func (s *statementService) build(ctx context.Context, account *domain.Account, month time.Time) (*Statement, error) {
	from, to := monthBounds(month)
	txs, err := s.ledger.ListSince(ctx, account.ID, from)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	// Walk back from the current balance: closing = balance - movements after
	// the month, opening = closing - movements during the month.
	var after, during decimal.Decimal
	st := &Statement{Account: account, From: from, To: to}
	for _, tx := range txs {
		delta := tx.Amount.Decimal()
		debit := tx.FromAccountID == account.ID
		if debit {
			delta = delta.Neg()
		}
		if !tx.CreatedAt.Before(to) {
			after = after.Add(delta)
			continue
		}
		during = during.Add(delta)
		line := StatementLine{Date: tx.CreatedAt, Kind: tx.Kind, Label: tx.Label}
		if debit {
			line.Debit = tx.Amount
		} else {
			line.Credit = tx.Amount
		}
		st.Lines = append(st.Lines, line)
	}

	closing := account.Balance.Decimal().Sub(after)
	opening := closing.Sub(during)
	if st.Closing, err = domain.MoneyFromDecimal(closing); err != nil {
		return nil, fmt.Errorf("closing balance of %s is inconsistent: %w", account.ID, err)
	}
	if st.Opening, err = domain.MoneyFromDecimal(opening); err != nil {
		return nil, fmt.Errorf("opening balance of %s is inconsistent: %w", account.ID, err)
	}
	return st, nil
}

func (s *statementService) Export(ctx context.Context, actorID, accountID string, month time.Time) (string, error) {
	st, err := s.Build(ctx, actorID, accountID, month)
	if err != nil {
		return "", err
	}
	return s.export(ctx, st)
}

func (s *statementService) ExportAll(ctx context.Context, month time.Time) (ExportReport, error) {
	from, _ := monthBounds(month)
	report := ExportReport{Month: from.Format("2006-01")}

	var accounts []domain.Account
	for _, t := range []domain.AccountType{domain.AccountTypeChecking, domain.AccountTypeSavings} {
		list, err := s.accounts.ListActive(ctx, t)
		if err != nil {
			return report, fmt.Errorf("list %s accounts: %w", t, err)
		}
		accounts = append(accounts, list...)
	}

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		account := &accounts[i]
		st, err := s.build(ctx, account, month)
		if err == nil {
			var location string
			location, err = s.export(ctx, st)
			if err == nil {
				report.Exported++
				report.Locations = append(report.Locations, location)
				continue
			}
		}
		report.Failed++
		s.log.WithFields(logrus.Fields{"account_id": account.ID, "month": report.Month}).WithError(err).Error("statement export failed")
	}

	s.log.WithFields(logrus.Fields{"month": report.Month, "exported": report.Exported, "failed": report.Failed}).Info("statements exported")
	if report.Failed > 0 {
		return report, fmt.Errorf("%d statements failed", report.Failed)
	}
	return report, nil
}

// accountPrefix is the archive folder holding every statement of account.
func (s *statementService) accountPrefix(account *domain.Account) string {
	return path.Join(strings.Trim(s.opts.KeyPrefix, "/"), account.OwnerID, account.ID) + "/"
}

func (s *statementService) export(ctx context.Context, st *Statement) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("statement storage is not configured")
	}
	body, err := RenderCSV(st)
	if err != nil {
		return "", err
	}
	month := st.From.Format("2006-01")
	location, err := s.store.Put(ctx, storage.Object{
		Key:         s.accountPrefix(st.Account) + month + ".csv",
		Body:        bytes.NewReader(body),
		Size:        int64(len(body)),
		ContentType: "text/csv",
		Metadata: map[string]string{
			"account": st.Account.ID,
			"iban":    st.Account.IBAN.String(),
			"month":   month,
			"closing": st.Closing.Amount(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("store statement: %w", err)
	}
	return location, nil
}

func (s *statementService) Archived(ctx context.Context, actorID, accountID string) ([]ArchivedStatement, error) {
	if s.store == nil {
		return nil, fmt.Errorf("statement storage is not configured")
	}
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	account, err := ownedAccount(ctx, s.accounts, actor, accountID, true)
	if err != nil {
		return nil, err
	}
	prefix := s.accountPrefix(account)
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	out := make([]ArchivedStatement, 0, len(objects))
	for _, obj := range objects {
		month, ok := strings.CutSuffix(strings.TrimPrefix(obj.Key, prefix), ".csv")
		if !ok || strings.Contains(month, "/") {
			continue
		}
		out = append(out, ArchivedStatement{Month: month, Key: obj.Key, Size: obj.Size, StoredAt: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *statementService) Link(ctx context.Context, actorID, accountID string, month time.Time) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("statement storage is not configured")
	}
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return "", err
	}
	account, err := ownedAccount(ctx, s.accounts, actor, accountID, true)
	if err != nil {
		return "", err
	}
	from, _ := monthBounds(month)
	key := s.accountPrefix(account) + from.Format("2006-01") + ".csv"
	url, err := s.store.Link(ctx, key, s.opts.LinkExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("statement %s of %s: %w", from.Format("2006-01"), account.ID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("link statement: %w", err)
	}
	return url, nil
}

// RenderCSV writes the statement as CSV: a header block, one row per posting
// and the closing balance.
func RenderCSV(st *Statement) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"iban", st.Account.IBAN.String()},
		{"period", st.From.Format(time.DateOnly), st.To.AddDate(0, 0, -1).Format(time.DateOnly)},
		{"opening_balance", st.Opening.Amount()},
		{},
		{"date", "kind", "label", "debit", "credit"},
	}
	for _, l := range st.Lines {
		debit, credit := "", ""
		if !l.Debit.IsZero() {
			debit = l.Debit.Amount()
		}
		if !l.Credit.IsZero() {
			credit = l.Credit.Amount()
		}
		rows = append(rows, []string{l.Date.UTC().Format(time.RFC3339), string(l.Kind), l.Label, debit, credit})
	}
	rows = append(rows, []string{}, []string{"closing_balance", st.Closing.Amount()})

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
