package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bankcore/internal/app"
	"bankcore/internal/config"
	"bankcore/internal/domain"
)

// Opener builds the services a command runs against.
type Opener func(ctx context.Context) (*app.App, error)

type runtime struct {
	open  Opener
	token string
	app   *app.App
}

// services opens the application on first use.
func (r *runtime) services(ctx context.Context) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	a, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	r.app = a
	return a, nil
}

// actor resolves the user behind --token or BANK_TOKEN.
func (r *runtime) actor(ctx context.Context) (*app.App, string, error) {
	a, err := r.services(ctx)
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(r.token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("BANK_TOKEN"))
	}
	if token == "" {
		return nil, "", fmt.Errorf("no session, run login first or pass --token: %w", domain.ErrForbidden)
	}
	claims, err := a.Users.ParseToken(token)
	if err != nil {
		return nil, "", err
	}
	return a, claims.UserID, nil
}

// director is like actor but only lets directors through, for bank-wide jobs.
func (r *runtime) director(ctx context.Context) (*app.App, string, error) {
	a, actorID, err := r.actor(ctx)
	if err != nil {
		return nil, "", err
	}
	user, err := a.Users.Get(ctx, actorID, actorID)
	if err != nil {
		return nil, "", err
	}
	if user.Role != domain.RoleDirector {
		return nil, "", fmt.Errorf("%s is not a director: %w", user.Email, domain.ErrForbidden)
	}
	return a, actorID, nil
}

func (r *runtime) close() {
	if r.app != nil {
		_ = r.app.Close()
		r.app = nil
	}
}

// Execute runs bankctl and exits with a code derived from the error kind.
func Execute(version string) {
	rt := &runtime{open: openFromConfig}
	cmd := newRootCmd(rt, version)
	err := cmd.Execute()
	rt.close()
	if err != nil {
		os.Exit(ExitCode(err))
	}
}

func openFromConfig(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.Log.Level)
	logger.SetOutput(os.Stderr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.EnsureDirector(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch domain.Kind(err) {
	case domain.KindInvalid:
		return 2
	case domain.KindNotFound:
		return 3
	case domain.KindForbidden:
		return 4
	case domain.KindConflict:
		return 5
	case domain.KindInsufficientFunds:
		return 6
	default:
		return 1
	}
}

func newRootCmd(rt *runtime, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bankctl",
		Short:        "Operate the bank from the command line",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&rt.token, "token", "", "session token (defaults to $BANK_TOKEN)")

	cmd.AddCommand(
		registerCmd(rt),
		loginCmd(rt),
		whoamiCmd(rt),
		staffCmd(rt),
		usersCmd(rt),
		accountsCmd(rt),
		depositCmd(rt),
		withdrawCmd(rt),
		transferCmd(rt),
		historyCmd(rt),
		savingsCmd(rt),
		stocksCmd(rt),
		ordersCmd(rt),
		portfolioCmd(rt),
		creditsCmd(rt),
		messagesCmd(rt),
		notificationsCmd(rt),
		statementsCmd(rt),
		seedCmd(rt),
		ibanCmd(),
	)
	return cmd
}

func parseMoney(flag, value string) (domain.Money, error) {
	m, err := domain.NewMoney(value)
	if err != nil {
		return domain.Money{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return m, nil
}

// requireFlags takes flag name/value pairs and reports the empty ones.
func requireFlags(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, "--"+pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), domain.ErrInvalidInput)
}
