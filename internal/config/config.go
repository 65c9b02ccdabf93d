package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		OpsAddr string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret        string
		TokenTTL         time.Duration
		LoginEvery       time.Duration
		LoginBurst       int
		DirectorEmail    string
		DirectorPassword string
	}
	Bank struct {
		Code   string
		Branch string
	}
	Storage struct {
		Bucket     string
		KeyPrefix  string
		Region     string
		Endpoint   string
		LocalDir   string
		LinkExpiry time.Duration
	}
	AWS struct {
		Profile string
	}
	Scheduler struct {
		Interest     string
		Installments string
		Statements   string
		Timeout      time.Duration
		Timezone     string
	}
	Market struct {
		Workers       int
		SweepInterval time.Duration
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
// Values from a .env file never override variables already set in the environment.
func Load() (Config, error) {
	return load(".")
}

func load(dir string) (Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env")) // optional file

	v := viper.New()
	v.SetEnvPrefix("BANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.opsaddr", "127.0.0.1:9090")
	v.SetDefault("database.path", "data/bank.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", "24h")
	v.SetDefault("auth.loginevery", "12s")
	v.SetDefault("auth.loginburst", 5)
	v.SetDefault("auth.directoremail", "director@bank.local")
	v.SetDefault("auth.directorpassword", "")
	v.SetDefault("bank.code", "30004")
	v.SetDefault("bank.branch", "00001")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "statements")
	v.SetDefault("storage.region", "eu-west-3")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.localdir", "data/statements")
	v.SetDefault("storage.linkexpiry", "15m")
	v.SetDefault("aws.profile", "")
	v.SetDefault("scheduler.interest", "@daily")
	v.SetDefault("scheduler.installments", "@daily")
	v.SetDefault("scheduler.statements", "0 2 1 * *")
	v.SetDefault("scheduler.timeout", "10m")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("market.workers", 4)
	v.SetDefault("market.sweepinterval", "5s")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(dir)
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	if len(cfg.Bank.Code) != 5 || len(cfg.Bank.Branch) != 5 {
		return Config{}, fmt.Errorf("bank code and branch must be 5 characters, got %q/%q", cfg.Bank.Code, cfg.Bank.Branch)
	}
	return cfg, nil
}

// Location returns the time zone the scheduler runs in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
