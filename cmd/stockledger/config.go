package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/store/backends"
)

// config is the resolved command-line configuration.
type config struct {
	Store         string   `mapstructure:"store"`
	DSN           string   `mapstructure:"dsn"`
	Database      string   `mapstructure:"database"`
	Profiles      []string `mapstructure:"profiles"`
	Currency      string   `mapstructure:"currency"`
	Timezone      string   `mapstructure:"timezone"`
	MaxAttempts   int      `mapstructure:"max_attempts"`
	AtomicCatalog bool     `mapstructure:"atomic_catalog"`
	LogLevel      string   `mapstructure:"log_level"`
}

// loadConfig reads .env, then stockledger.yaml (optional), then STOCKLEDGER_*
// environment variables. Later sources win.
func loadConfig(paths ...string) (*config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("stockledger")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.config/stockledger")
	}

	v.SetEnvPrefix("STOCKLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", backends.SQLite)
	v.SetDefault("dsn", "")
	v.SetDefault("database", backends.DefaultMongoDatabase)
	v.SetDefault("profiles", []string{"JP", "Pau"})
	v.SetDefault("currency", "cop")
	v.SetDefault("timezone", "America/Bogota")
	v.SetDefault("max_attempts", 5)
	v.SetDefault("atomic_catalog", false)
	v.SetDefault("log_level", "warn")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Profiles = splitProfiles(cfg.Profiles)
	if len(cfg.Profiles) == 0 {
		return nil, stockledger.ValidationError{Field: "profiles", Message: "at least one profile is required"}
	}
	return &cfg, nil
}

// splitProfiles accepts both YAML lists and a comma separated env value.
func splitProfiles(in []string) []string {
	var out []string
	for _, p := range in {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *config) backend() backends.Config {
	return backends.Config{Driver: c.Store, DSN: c.DSN, Database: c.Database}
}

func (c *config) ledgerOptions(logger *slog.Logger) ([]stockledger.Option, error) {
	opts := []stockledger.Option{
		stockledger.WithLogger(logger),
		stockledger.WithProfiles(c.Profiles...),
		stockledger.WithCurrency(c.Currency),
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, stockledger.WithMaxAttempts(c.MaxAttempts))
	}
	if c.AtomicCatalog {
		opts = append(opts, stockledger.WithAtomicCatalog())
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, stockledger.ValidationError{Field: "timezone", Message: err.Error()}
		}
		opts = append(opts, stockledger.WithLocation(loc))
	}
	return opts, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
