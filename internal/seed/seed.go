package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"bankcore/internal/domain"
	"bankcore/internal/service"
)

// Person is a user entry of a fixture file.
type Person struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	// Advisor and Deposit only apply to clients.
	Advisor string `yaml:"advisor,omitempty"`
	Deposit string `yaml:"deposit,omitempty"`
}

func (p Person) registration() service.Registration {
	return service.Registration{Email: p.Email, Password: p.Password, FirstName: p.FirstName, LastName: p.LastName}
}

type Stock struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
	Price  string `yaml:"price"`
}

type Allotment struct {
	Client   string `yaml:"client"`
	Symbol   string `yaml:"symbol"`
	Quantity int64  `yaml:"quantity"`
}

// Fixtures describe a bank to bootstrap.
type Fixtures struct {
	Director    Person      `yaml:"director"`
	Advisors    []Person    `yaml:"advisors"`
	Clients     []Person    `yaml:"clients"`
	Stocks      []Stock     `yaml:"stocks"`
	Allotments  []Allotment `yaml:"allotments"`
	SavingsRate string      `yaml:"savings_rate"`
}

// Services are the use-cases seeding goes through.
type Services struct {
	Users    service.UserService
	Accounts service.AccountService
	Ledger   service.LedgerService
	Savings  service.SavingsService
	Market   service.MarketService
}

// Report counts what Apply created; existing entries are left alone.
type Report struct {
	Advisors   int
	Clients    int
	Stocks     int
	Allotments int
	RateSet    bool
}

func Load(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixtures, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// Apply creates the fixtures that do not exist yet. Running it twice is safe:
// users and stocks are matched by email and symbol, and deposits and
// allotments only go to clients created by this run.
func Apply(ctx context.Context, svc Services, f *Fixtures, log logrus.FieldLogger) (Report, error) {
	var report Report
	if log == nil {
		log = logrus.StandardLogger()
	}

	director, _, err := svc.Users.EnsureDirector(ctx, f.Director.registration())
	if err != nil {
		return report, fmt.Errorf("ensure director: %w", err)
	}

	advisors := make(map[string]*domain.User)
	for _, p := range f.Advisors {
		user, created, err := ensureUser(ctx, svc.Users, director.ID, domain.RoleAdvisor, p)
		if err != nil {
			return report, err
		}
		if created {
			report.Advisors++
		}
		advisors[strings.ToLower(p.Email)] = user
	}

	newClients := make(map[string]*domain.User)
	for _, p := range f.Clients {
		user, created, err := ensureUser(ctx, svc.Users, director.ID, domain.RoleClient, p)
		if err != nil {
			return report, err
		}
		if !created {
			continue
		}
		report.Clients++
		newClients[strings.ToLower(p.Email)] = user

		if p.Advisor != "" {
			advisor, ok := advisors[strings.ToLower(p.Advisor)]
			if !ok {
				return report, fmt.Errorf("client %s: unknown advisor %s: %w", p.Email, p.Advisor, domain.ErrInvalidInput)
			}
			if err := svc.Users.AssignAdvisor(ctx, director.ID, user.ID, advisor.ID); err != nil {
				return report, fmt.Errorf("assign advisor to %s: %w", p.Email, err)
			}
		}
		if p.Deposit != "" {
			if err := deposit(ctx, svc, user, p.Deposit); err != nil {
				return report, fmt.Errorf("initial deposit of %s: %w", p.Email, err)
			}
		}
		log.WithField("user_id", user.ID).Infof("seeded client %s", user.Email)
	}

	bySymbol := make(map[string]*domain.Stock, len(f.Stocks))
	for _, s := range f.Stocks {
		symbol := strings.ToUpper(strings.TrimSpace(s.Symbol))
		stock, err := svc.Market.StockBySymbol(ctx, symbol)
		switch {
		case err == nil:
			bySymbol[symbol] = stock
			continue
		case !errors.Is(err, domain.ErrNotFound):
			return report, err
		}
		price, err := domain.NewMoney(s.Price)
		if err != nil {
			return report, fmt.Errorf("stock %s: %w", symbol, err)
		}
		stock, err = svc.Market.CreateStock(ctx, director.ID, symbol, s.Name, price)
		if err != nil {
			return report, fmt.Errorf("create stock %s: %w", symbol, err)
		}
		bySymbol[symbol] = stock
		report.Stocks++
	}

	for _, a := range f.Allotments {
		client, ok := newClients[strings.ToLower(a.Client)]
		if !ok {
			continue
		}
		stock, ok := bySymbol[strings.ToUpper(a.Symbol)]
		if !ok {
			var err error
			if stock, err = svc.Market.StockBySymbol(ctx, a.Symbol); err != nil {
				return report, fmt.Errorf("allotment for %s: unknown stock %s: %w", a.Client, a.Symbol, domain.ErrInvalidInput)
			}
		}
		if err := svc.Market.AllotShares(ctx, director.ID, client.ID, stock.ID, a.Quantity); err != nil {
			return report, fmt.Errorf("allot %s to %s: %w", a.Symbol, a.Client, err)
		}
		report.Allotments++
	}

	if f.SavingsRate != "" {
		set, err := ensureRate(ctx, svc.Savings, director.ID, f.SavingsRate)
		if err != nil {
			return report, err
		}
		report.RateSet = set
	}
	return report, nil
}

// ensureUser creates p with role, or finds the existing user with the same email.
func ensureUser(ctx context.Context, users service.UserService, directorID string, role domain.Role, p Person) (*domain.User, bool, error) {
	var (
		user *domain.User
		err  error
	)
	if role == domain.RoleClient {
		user, err = users.Register(ctx, p.registration())
	} else {
		user, err = users.CreateStaff(ctx, directorID, role, p.registration())
	}
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, false, fmt.Errorf("create %s %s: %w", role, p.Email, err)
	}

	existing, err := users.List(ctx, directorID, role)
	if err != nil {
		return nil, false, fmt.Errorf("list %ss: %w", role, err)
	}
	for i := range existing {
		if strings.EqualFold(existing[i].Email, p.Email) {
			return &existing[i], false, nil
		}
	}
	return nil, false, fmt.Errorf("%s is registered with another role: %w", p.Email, domain.ErrConflict)
}

func deposit(ctx context.Context, svc Services, client *domain.User, amount string) error {
	m, err := domain.NewMoney(amount)
	if err != nil {
		return err
	}
	accounts, err := svc.Accounts.ListForOwner(ctx, client.ID, client.ID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no account: %w", domain.ErrNotFound)
	}
	_, err = svc.Ledger.Deposit(ctx, client.ID, accounts[0].ID, m)
	return err
}

func ensureRate(ctx context.Context, savings service.SavingsService, directorID, value string) (bool, error) {
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return false, fmt.Errorf("savings rate %q: %w", value, domain.ErrInvalidInput)
	}
	current, err := savings.CurrentRate(ctx)
	switch {
	case err == nil && current.Rate.Equal(rate):
		return false, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("current savings rate: %w", err)
	}
	if _, err := savings.SetRate(ctx, directorID, rate); err != nil {
		return false, fmt.Errorf("set savings rate: %w", err)
	}
	return true, nil
}
