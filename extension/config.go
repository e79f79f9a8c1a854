package extension

import "time"

// Config holds the StockLedger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.stockledger" or "stockledger" keys).
type Config struct {
	// Profiles lists the sellers allowed to record sales (default: JP, Pau).
	Profiles []string `json:"profiles" mapstructure:"profiles" yaml:"profiles"`

	// MaxAttempts bounds how many times a conflicting atomic unit is tried
	// (default: 5).
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`

	// AtomicCatalog runs AddFlavor's settings and inventory writes as one unit.
	AtomicCatalog bool `json:"atomic_catalog" mapstructure:"atomic_catalog" yaml:"atomic_catalog"`

	// Currency is the ISO 4217 code used for projected money (default: "cop").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// Timezone is the IANA zone that groups sale history into days
	// (default: "America/Bogota").
	Timezone string `json:"timezone" mapstructure:"timezone" yaml:"timezone"`

	// ProjectionDebounce coalesces bursts of changes before the live
	// projection recomputes (default: 0, recompute on every change).
	ProjectionDebounce time.Duration `json:"projection_debounce" mapstructure:"projection_debounce" yaml:"projection_debounce"`

	// DisableProjection turns off the live projection worker.
	DisableProjection bool `json:"disable_projection" mapstructure:"disable_projection" yaml:"disable_projection"`

	// DisableMigrate prevents starting the engine (and thus migrating) on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Store selects the backend: memory, sqlite, postgres or mongo (default: memory).
	// Ignored when a store is given with WithStore.
	Store string `json:"store" mapstructure:"store" yaml:"store"`

	// DSN addresses the backend: file path, connection string or URI.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "stockledger").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profiles:    []string{"JP", "Pau"},
		MaxAttempts: 5,
		Currency:    "cop",
		Timezone:    "America/Bogota",
		Store:       "memory",
	}
}
