package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcore/internal/config"
	"bankcore/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.Database.Path = filepath.Join(dir, "bank.db")
	cfg.Storage.LocalDir = filepath.Join(dir, "statements")
	cfg.Storage.KeyPrefix = "statements"
	cfg.Auth.JWTSecret = "0123456789abcdef-app"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.DirectorEmail = "boss@bank.test"
	cfg.Auth.DirectorPassword = "correct horse"
	cfg.Bank.Code = "30004"
	cfg.Bank.Branch = "00001"
	return cfg
}

func TestNewWiresServices(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logger := NewLogger("error")
	logger.SetOutput(io.Discard)

	a, err := New(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.EnsureDirector(ctx, cfg))
	require.NoError(t, a.EnsureDirector(ctx, cfg))

	director, err := a.Users.Authenticate(ctx, "boss@bank.test", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDirector, director.Role)

	staff, err := a.Users.List(ctx, director.ID, domain.RoleDirector)
	require.NoError(t, err)
	assert.Len(t, staff, 1)
}

func TestNewRejectsShortSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"
	logger := NewLogger("error")
	logger.SetOutput(io.Discard)

	_, err := New(context.Background(), cfg, logger)
	assert.Error(t, err)
}
