package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
	"bankcore/internal/repository/sqlite"
	"bankcore/internal/storage"
)

const testPassword = "correct horse"

type testEnv struct {
	db *sql.DB

	userRepo     repository.UserRepository
	accountRepo  repository.AccountRepository
	ledgerRepo   repository.LedgerRepository
	rateRepo     repository.SavingsRateRepository
	stockRepo    repository.StockRepository
	orderRepo    repository.OrderRepository
	creditRepo   repository.CreditRepository
	messageRepo  repository.MessageRepository
	notifyRepo   repository.NotificationRepository
	store        *memoryStore
	log          *logrus.Logger
	director     *domain.User
	users        UserService
	accounts     AccountService
	ledger       LedgerService
	savings      SavingsService
	market       MarketService
	credits      CreditService
	messages     MessageService
	notification NotificationService
	statements   StatementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	e := &testEnv{
		db:          db,
		userRepo:    sqlite.NewUserRepository(db),
		accountRepo: sqlite.NewAccountRepository(db),
		ledgerRepo:  sqlite.NewLedgerRepository(db),
		rateRepo:    sqlite.NewSavingsRateRepository(db),
		stockRepo:   sqlite.NewStockRepository(db),
		orderRepo:   sqlite.NewOrderRepository(db),
		creditRepo:  sqlite.NewCreditRepository(db),
		messageRepo: sqlite.NewMessageRepository(db),
		notifyRepo:  sqlite.NewNotificationRepository(db),
		store:       &memoryStore{bucket: "statements-test", objects: make(map[string][]byte), meta: make(map[string]map[string]string)},
		log:         log,
	}
	require.NoError(t, sqlite.InitAll(ctx,
		e.userRepo, e.accountRepo, e.ledgerRepo, e.rateRepo, e.stockRepo,
		e.orderRepo, e.creditRepo, e.messageRepo, e.notifyRepo,
	))

	tokens, err := NewTokenIssuer("0123456789abcdef-test", time.Hour)
	require.NoError(t, err)

	e.notification = NewNotificationService(e.notifyRepo)
	e.accounts = NewAccountService(e.userRepo, e.accountRepo, BankIdentity{BankCode: "30004", BranchCode: "00001"}, log)
	e.users = NewUserService(e.userRepo, e.accounts, e.notification, tokens, LoginLimit{}, log)
	e.ledger = NewLedgerService(e.userRepo, e.accountRepo, e.ledgerRepo, e.notification, log)
	e.savings = NewSavingsService(e.userRepo, e.accountRepo, e.ledgerRepo, e.rateRepo, e.notification, log)
	e.market = NewMarketService(e.userRepo, e.accountRepo, e.stockRepo, e.orderRepo, e.notification, log)
	e.credits = NewCreditService(e.userRepo, e.accountRepo, e.creditRepo, e.notification, log)
	e.messages = NewMessageService(e.userRepo, e.messageRepo, e.notification, log)
	e.statements = NewStatementService(e.userRepo, e.accountRepo, e.ledgerRepo, e.store,
		StatementOptions{KeyPrefix: "monthly", LinkExpiry: time.Hour}, log)

	director, created, err := e.users.EnsureDirector(ctx, Registration{
		Email: "director@bank.test", Password: testPassword, FirstName: "Dora", LastName: "Director",
	})
	require.NoError(t, err)
	require.True(t, created)
	e.director = director
	return e
}

// client registers a client and returns it with its default checking account.
func (e *testEnv) client(t *testing.T, email string) (*domain.User, *domain.Account) {
	t.Helper()
	ctx := context.Background()
	user, err := e.users.Register(ctx, Registration{Email: email, Password: testPassword, FirstName: email})
	require.NoError(t, err)
	accounts, err := e.accounts.ListForOwner(ctx, user.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	return user, &accounts[0]
}

func (e *testEnv) advisor(t *testing.T, email string) *domain.User {
	t.Helper()
	user, err := e.users.CreateStaff(context.Background(), e.director.ID, domain.RoleAdvisor,
		Registration{Email: email, Password: testPassword, FirstName: email})
	require.NoError(t, err)
	return user
}

func (e *testEnv) deposit(t *testing.T, owner *domain.User, account *domain.Account, amount string) {
	t.Helper()
	_, err := e.ledger.Deposit(context.Background(), owner.ID, account.ID, domain.MustMoney(amount))
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, accountID string) string {
	t.Helper()
	account, err := e.accountRepo.Get(context.Background(), accountID)
	require.NoError(t, err)
	return account.Balance.Amount()
}

func (e *testEnv) notificationsOf(t *testing.T, userID string, kind domain.NotificationKind) []domain.Notification {
	t.Helper()
	all, err := e.notification.List(context.Background(), userID, false)
	require.NoError(t, err)
	var out []domain.Notification
	for _, n := range all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// memoryStore is an in-memory storage.Archive.
type memoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	meta    map[string]map[string]string
}

func (m *memoryStore) Put(ctx context.Context, obj storage.Object) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj.Body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[m.bucket+"/"+obj.Key] = buf.Bytes()
	m.meta[m.bucket+"/"+obj.Key] = obj.Metadata
	return "s3://" + m.bucket + "/" + obj.Key, nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, b := range m.objects {
		key := strings.TrimPrefix(k, m.bucket+"/")
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(b)), LastModified: time.Now()})
		}
	}
	return out, nil
}

func (m *memoryStore) Link(ctx context.Context, key string, expires time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[m.bucket+"/"+key]; !ok {
		return "", storage.ErrNotFound
	}
	return "https://example.invalid/" + m.bucket + "/" + key + "?expires=" + expires.String(), nil
}

func (m *memoryStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
