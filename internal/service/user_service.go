package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"bankcore/internal/domain"
	"bankcore/internal/metrics"
	"bankcore/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrForbidden)
	// ErrTooManyAttempts is returned while an email is throttled after failed logins.
	ErrTooManyAttempts = fmt.Errorf("too many login attempts: %w", domain.ErrForbidden)
)

const minPasswordLength = 8

// Registration carries the identity of a new user.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UserService describes user lifecycle operations.
type UserService interface {
	// Register creates a client and opens their first checking account.
	Register(ctx context.Context, in Registration) (*domain.User, error)
	// CreateStaff creates an advisor or a director. actorID must be a director.
	CreateStaff(ctx context.Context, actorID string, role domain.Role, in Registration) (*domain.User, error)
	// EnsureDirector creates the first director when none exists yet.
	EnsureDirector(ctx context.Context, in Registration) (*domain.User, bool, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	IssueToken(user *domain.User) (string, error)
	ParseToken(token string) (*Claims, error)
	Get(ctx context.Context, actorID, id string) (*domain.User, error)
	List(ctx context.Context, actorID string, role domain.Role) ([]domain.User, error)
	Ban(ctx context.Context, actorID, userID string) error
	Unban(ctx context.Context, actorID, userID string) error
	AssignAdvisor(ctx context.Context, actorID, clientID, advisorID string) error
}

// LoginLimit throttles authentication attempts per email.
type LoginLimit struct {
	Every time.Duration
	Burst int
}

type userService struct {
	users         repository.UserRepository
	accounts      AccountService
	notifications NotificationService
	tokens        *TokenIssuer
	log           logrus.FieldLogger

	limit     LoginLimit
	now       func() time.Time
	mu        sync.Mutex
	limiters  map[string]*loginLimiter
	lastSweep time.Time
}

type loginLimiter struct {
	*rate.Limiter
	seen time.Time
}

func NewUserService(users repository.UserRepository, accounts AccountService, notifications NotificationService,
	tokens *TokenIssuer, limit LoginLimit, log logrus.FieldLogger) UserService {
	if limit.Every <= 0 {
		limit.Every = 12 * time.Second
	}
	if limit.Burst <= 0 {
		limit.Burst = 5
	}
	return &userService{
		users:         users,
		accounts:      accounts,
		notifications: notifications,
		tokens:        tokens,
		log:           defaultLogger(log),
		limit:         limit,
		now:           time.Now,
		limiters:      make(map[string]*loginLimiter),
	}
}

func (s *userService) Register(ctx context.Context, in Registration) (*domain.User, error) {
	user, err := s.create(ctx, domain.RoleClient, in)
	if err != nil {
		return nil, err
	}
	if s.accounts != nil {
		if _, err := s.accounts.OpenDefault(ctx, user); err != nil {
			// free the email for another attempt
			if derr := s.users.Delete(context.WithoutCancel(ctx), user.ID); derr != nil {
				s.log.WithField("user_id", user.ID).WithError(derr).Error("remove client without account")
			}
			return nil, fmt.Errorf("open first account: %w", err)
		}
	}
	s.log.WithField("user_id", user.ID).Info("client registered")
	return sanitizeUser(user), nil
}

func (s *userService) CreateStaff(ctx context.Context, actorID string, role domain.Role, in Registration) (*domain.User, error) {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return nil, err
	}
	if role != domain.RoleAdvisor && role != domain.RoleDirector {
		return nil, fmt.Errorf("staff role %q: %w", role, domain.ErrInvalidInput)
	}
	user, err := s.create(ctx, role, in)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("staff member created")
	return sanitizeUser(user), nil
}

func (s *userService) EnsureDirector(ctx context.Context, in Registration) (*domain.User, bool, error) {
	directors, err := s.users.List(ctx, domain.RoleDirector)
	if err != nil {
		return nil, false, fmt.Errorf("list directors: %w", err)
	}
	if len(directors) > 0 {
		return sanitizeUser(&directors[0]), false, nil
	}
	user, err := s.create(ctx, domain.RoleDirector, in)
	if err != nil {
		return nil, false, err
	}
	return sanitizeUser(user), true, nil
}

func (s *userService) create(ctx context.Context, role domain.Role, in Registration) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	password := strings.TrimSpace(in.Password)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)

	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email %q: %w", in.Email, domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, domain.ErrInvalidInput)
	}
	if first == "" {
		return nil, fmt.Errorf("first name is required: %w", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if !s.limiter(email).Allow() {
		metrics.RecordLogin("throttled")
		return nil, ErrTooManyAttempts
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.RecordLogin("failed")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.RecordLogin("failed")
		return nil, ErrInvalidCredentials
	}
	if user.Banned {
		metrics.RecordLogin("banned")
		return nil, fmt.Errorf("user %s is banned: %w", email, domain.ErrForbidden)
	}

	metrics.RecordLogin("success")
	return sanitizeUser(user), nil
}

// limiter returns the attempt budget of email. A limiter left alone for
// Every*Burst has refilled completely, so it is dropped and rebuilt on demand.
func (s *userService) limiter(email string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	idle := s.limit.Every * time.Duration(s.limit.Burst)
	if now.Sub(s.lastSweep) >= idle {
		for k, l := range s.limiters {
			if now.Sub(l.seen) >= idle {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	l, ok := s.limiters[email]
	if !ok {
		l = &loginLimiter{Limiter: rate.NewLimiter(rate.Every(s.limit.Every), s.limit.Burst)}
		s.limiters[email] = l
	}
	l.seen = now
	return l.Limiter
}

func (s *userService) IssueToken(user *domain.User) (string, error) {
	if s.tokens == nil {
		return "", errors.New("token issuer is not configured")
	}
	return s.tokens.Issue(user)
}

func (s *userService) ParseToken(token string) (*Claims, error) {
	if s.tokens == nil {
		return nil, errors.New("token issuer is not configured")
	}
	return s.tokens.Parse(strings.TrimSpace(token))
}

func (s *userService) Get(ctx context.Context, actorID, id string) (*domain.User, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != id && !actor.IsStaff() {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrForbidden)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context, actorID string, role domain.Role) ([]domain.User, error) {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleAdvisor, domain.RoleDirector); err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, domain.ErrInvalidInput)
	}
	users, err := s.users.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *userService) Ban(ctx context.Context, actorID, userID string) error {
	if err := s.setBanned(ctx, actorID, userID, true); err != nil {
		return err
	}
	notify(ctx, s.notifications, s.log, userID, domain.NotifyAccountBanned,
		"Your access has been suspended", "Please contact the bank.")
	return nil
}

func (s *userService) Unban(ctx context.Context, actorID, userID string) error {
	return s.setBanned(ctx, actorID, userID, false)
}

func (s *userService) setBanned(ctx context.Context, actorID, userID string, banned bool) error {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return err
	}
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.Role != domain.RoleClient {
		return fmt.Errorf("only clients can be banned: %w", domain.ErrInvalidInput)
	}
	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "banned": banned}).Info("client ban status changed")
	return nil
}

func (s *userService) AssignAdvisor(ctx context.Context, actorID, clientID, advisorID string) error {
	if _, err := loadActor(ctx, s.users, actorID, domain.RoleDirector); err != nil {
		return err
	}
	client, err := s.users.GetByID(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Role != domain.RoleClient {
		return fmt.Errorf("%s is not a client: %w", clientID, domain.ErrInvalidInput)
	}
	advisor, err := s.users.GetByID(ctx, advisorID)
	if err != nil {
		return err
	}
	if advisor.Role != domain.RoleAdvisor {
		return fmt.Errorf("%s is not an advisor: %w", advisorID, domain.ErrInvalidInput)
	}
	if err := s.users.SetAdvisor(ctx, clientID, advisorID); err != nil {
		return fmt.Errorf("assign advisor: %w", err)
	}
	return nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
