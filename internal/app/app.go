package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"bankcore/internal/config"
	"bankcore/internal/repository/sqlite"
	"bankcore/internal/service"
	"bankcore/internal/storage"
)

// App is the set of services shared by the server and the CLI.
type App struct {
	DB      *sql.DB
	Storage storage.Archive
	Logger  *logrus.Logger

	Notifications service.NotificationService
	Users         service.UserService
	Accounts      service.AccountService
	Ledger        service.LedgerService
	Savings       service.SavingsService
	Market        service.MarketService
	Credits       service.CreditService
	Messages      service.MessageService
	Statements    service.StatementService
}

// NewLogger returns the logrus logger every binary uses.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown log level %q, using info", level)
	}
	return logger
}

// New opens the database, creates the schema and wires every service.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*App, error) {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	accountRepo := sqlite.NewAccountRepository(db)
	ledgerRepo := sqlite.NewLedgerRepository(db)
	rateRepo := sqlite.NewSavingsRateRepository(db)
	stockRepo := sqlite.NewStockRepository(db)
	orderRepo := sqlite.NewOrderRepository(db)
	creditRepo := sqlite.NewCreditRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)
	notificationRepo := sqlite.NewNotificationRepository(db)

	if err := sqlite.InitAll(ctx,
		userRepo, accountRepo, ledgerRepo, rateRepo, stockRepo,
		orderRepo, creditRepo, messageRepo, notificationRepo,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("init repositories: %w", err)
	}

	store, err := storage.Build(ctx, storage.Options{
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
		Profile:  cfg.AWS.Profile,
		LocalDir: cfg.Storage.LocalDir,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	tokens, err := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{DB: db, Storage: store, Logger: logger}
	a.Notifications = service.NewNotificationService(notificationRepo)
	a.Accounts = service.NewAccountService(userRepo, accountRepo, service.BankIdentity{
		BankCode:   cfg.Bank.Code,
		BranchCode: cfg.Bank.Branch,
	}, logger)
	a.Users = service.NewUserService(userRepo, a.Accounts, a.Notifications, tokens, service.LoginLimit{
		Every: cfg.Auth.LoginEvery,
		Burst: cfg.Auth.LoginBurst,
	}, logger)
	a.Ledger = service.NewLedgerService(userRepo, accountRepo, ledgerRepo, a.Notifications, logger)
	a.Savings = service.NewSavingsService(userRepo, accountRepo, ledgerRepo, rateRepo, a.Notifications, logger)
	a.Market = service.NewMarketService(userRepo, accountRepo, stockRepo, orderRepo, a.Notifications, logger)
	a.Credits = service.NewCreditService(userRepo, accountRepo, creditRepo, a.Notifications, logger)
	a.Messages = service.NewMessageService(userRepo, messageRepo, a.Notifications, logger)
	a.Statements = service.NewStatementService(userRepo, accountRepo, ledgerRepo, store, service.StatementOptions{
		KeyPrefix:  cfg.Storage.KeyPrefix,
		LinkExpiry: cfg.Storage.LinkExpiry,
	}, logger)
	return a, nil
}

// EnsureDirector creates the bootstrap director from configuration when the
// bank has none. It does nothing when no password is configured.
func (a *App) EnsureDirector(ctx context.Context, cfg config.Config) error {
	if cfg.Auth.DirectorPassword == "" {
		return nil
	}
	user, created, err := a.Users.EnsureDirector(ctx, service.Registration{
		Email:     cfg.Auth.DirectorEmail,
		Password:  cfg.Auth.DirectorPassword,
		FirstName: "Director",
	})
	if err != nil {
		return fmt.Errorf("ensure director: %w", err)
	}
	if created {
		a.Logger.WithField("user_id", user.ID).Infof("created director %s", user.Email)
	}
	return nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
