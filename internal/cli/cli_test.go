package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/app"
	"bankcore/internal/config"
	"bankcore/internal/domain"
)

type harness struct {
	t   *testing.T
	cfg config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.Database.Path = filepath.Join(dir, "bank.db")
	cfg.Storage.LocalDir = filepath.Join(dir, "objects")
	cfg.Storage.KeyPrefix = "statements"
	cfg.Auth.JWTSecret = "0123456789abcdef-cli"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.DirectorEmail = "director@bank.test"
	cfg.Auth.DirectorPassword = "correct horse"
	cfg.Bank.Code = "30004"
	cfg.Bank.Branch = "00001"
	return &harness{t: t, cfg: cfg}
}

func (h *harness) open(ctx context.Context) (*app.App, error) {
	logger := app.NewLogger("error")
	logger.SetOutput(io.Discard)
	a, err := app.New(ctx, h.cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.EnsureDirector(ctx, h.cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// run executes one bankctl invocation against the harness database.
func (h *harness) run(args ...string) (string, error) {
	rt := &runtime{open: h.open}
	defer rt.close()
	cmd := newRootCmd(rt, "test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) must(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "bankctl %s", strings.Join(args, " "))
	return out
}

func (h *harness) login(email string) string {
	h.t.Helper()
	return strings.TrimSpace(h.must("login", "--email", email, "--password", "correct horse"))
}

// firstField returns the first column of the first data row of a table.
func firstField(table string) string {
	lines := strings.Split(strings.TrimSpace(table), "\n")
	if len(lines) < 2 {
		return ""
	}
	return strings.Fields(lines[1])[0]
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("x: %w", domain.ErrInvalidIBAN)))
	assert.Equal(t, 3, ExitCode(domain.ErrNotFound))
	assert.Equal(t, 4, ExitCode(domain.ErrForbidden))
	assert.Equal(t, 5, ExitCode(domain.ErrAccountClosed))
	assert.Equal(t, 6, ExitCode(domain.ErrInsufficientFunds))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}

func TestIBANCommands(t *testing.T) {
	h := newHarness(t)
	out := h.must("iban", "validate", "FR14", "2004", "1010", "0505", "0001", "3M02", "606")
	assert.Contains(t, out, "valid (FR)")

	_, err := h.run("iban", "validate", "FR1420041010050500013M02607")
	assert.ErrorIs(t, err, domain.ErrInvalidIBAN)

	out = h.must("iban", "generate", "--account", "12345678901")
	_, err = domain.ParseIBAN(strings.TrimSpace(out))
	assert.NoError(t, err)
}

func TestCommandsNeedASession(t *testing.T) {
	h := newHarness(t)
	t.Setenv("BANK_TOKEN", "")
	_, err := h.run("accounts", "list")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestClientJourney(t *testing.T) {
	h := newHarness(t)
	h.must("register", "--email", "ana@example.com", "--password", "correct horse", "--first-name", "Ana")
	h.must("register", "--email", "ben@example.com", "--password", "correct horse", "--first-name", "Ben")
	ana := h.login("ana@example.com")
	ben := h.login("ben@example.com")

	anaAccount := firstField(h.must("accounts", "list", "--token", ana))
	require.NotEmpty(t, anaAccount)
	benAccounts := h.must("accounts", "list", "--token", ben)
	benIBAN := strings.Join(strings.Fields(strings.Split(strings.TrimSpace(benAccounts), "\n")[1])[1:8], "")

	h.must("deposit", "--token", ana, "--account", anaAccount, "--amount", "100")
	out := h.must("transfer", "--token", ana, "--from", anaAccount, "--to", benIBAN, "--amount", "30.25", "--label", "dinner")
	assert.Contains(t, out, "30.25 EUR")

	_, err := h.run("withdraw", "--token", ana, "--account", anaAccount, "--amount", "500")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 6, ExitCode(err))

	history := h.must("history", anaAccount, "--token", ana)
	assert.Contains(t, history, "-30.25")
	assert.Contains(t, history, "dinner")

	notes := h.must("notifications", "list", "--token", ben)
	assert.Contains(t, notes, "transfer_received")

	month := time.Now().Format("2006-01")
	loc := strings.TrimSpace(h.must("statements", "export", anaAccount, "--month", month, "--token", ana))
	assert.True(t, strings.HasPrefix(loc, "file://"))
	assert.True(t, strings.HasSuffix(loc, month+".csv"))
	archived := h.must("statements", "archived", anaAccount, "--token", ana)
	assert.Contains(t, archived, month)
	link := strings.TrimSpace(h.must("statements", "link", anaAccount, "--month", month, "--token", ana))
	assert.Equal(t, loc, link)
	_, err = h.run("statements", "archived", anaAccount, "--token", ben)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDirectorCommands(t *testing.T) {
	h := newHarness(t)
	director := h.login("director@bank.test")
	h.must("register", "--email", "cli@example.com", "--password", "correct horse", "--first-name", "Cli")
	client := h.login("cli@example.com")

	out := h.must("savings", "set-rate", "3", "--token", director)
	assert.Contains(t, out, "3%")
	_, err := h.run("savings", "set-rate", "3", "--token", client)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.run("savings", "accrue", "--token", client)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	out = h.must("savings", "accrue", "--day", "2026-03-01", "--token", director)
	assert.Contains(t, out, "2026-03-01")

	out = h.must("stocks", "create", "--symbol", "acme", "--name", "Acme", "--price", "10", "--token", director)
	assert.Contains(t, out, "ACME")

	account := firstField(h.must("accounts", "list", "--token", client))
	h.must("deposit", "--account", account, "--amount", "50", "--token", client)
	out = h.must("orders", "place", "--account", account, "--stock", "acme", "--side", "buy",
		"--quantity", "2", "--price", "10", "--token", client)
	assert.Contains(t, out, "status pending, filled 0/2")
	_, err = h.run("orders", "place", "--account", account, "--stock", "NOPE", "--side", "buy",
		"--quantity", "1", "--price", "10", "--token", client)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out = h.must("credits", "simulate", "--principal", "1000", "--months", "12", "--rate", "0")
	assert.Contains(t, out, "83.33")
}
