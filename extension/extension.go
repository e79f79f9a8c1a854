// Package extension provides the Forge extension adapter for StockLedger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.stockledger" or
// "stockledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/store/backends"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "stockledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Shared stock and sales ledger for a two-seller stand"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts StockLedger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *stockledger.Ledger
	store      store.Store
	ledgerOpts []stockledger.Option
}

// New creates a new StockLedger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *stockledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration, opens the
// configured store, builds the engine and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := backends.Open(context.Background(), backends.Config{
			Driver:   e.config.Store,
			DSN:      e.config.DSN,
			Database: e.config.Database,
		}, slog.Default())
		if err != nil {
			return fmt.Errorf("stockledger: open %s store: %w", e.config.Store, err)
		}
		e.store = s
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}
	e.engine = stockledger.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*stockledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("stockledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("stockledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs stockledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() ([]stockledger.Option, error) {
	opts := make([]stockledger.Option, 0, len(e.ledgerOpts)+7)

	if len(e.config.Profiles) > 0 {
		opts = append(opts, stockledger.WithProfiles(e.config.Profiles...))
	}
	if e.config.MaxAttempts > 0 {
		opts = append(opts, stockledger.WithMaxAttempts(e.config.MaxAttempts))
	}
	if e.config.AtomicCatalog {
		opts = append(opts, stockledger.WithAtomicCatalog())
	}
	if e.config.Currency != "" {
		opts = append(opts, stockledger.WithCurrency(e.config.Currency))
	}
	if e.config.Timezone != "" {
		loc, err := time.LoadLocation(e.config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("stockledger: timezone %q: %w", e.config.Timezone, err)
		}
		opts = append(opts, stockledger.WithLocation(loc))
	}
	opts = append(opts,
		stockledger.WithProjection(!e.config.DisableProjection),
		stockledger.WithProjectionDebounce(e.config.ProjectionDebounce),
	)

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("stockledger: configuration is required but not found in config files; " +
				"ensure 'extensions.stockledger' or 'stockledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("stockledger: configuration loaded",
		forge.F("profiles", e.config.Profiles),
		forge.F("max_attempts", e.config.MaxAttempts),
		forge.F("atomic_catalog", e.config.AtomicCatalog),
		forge.F("currency", e.config.Currency),
		forge.F("timezone", e.config.Timezone),
		forge.F("projection_debounce", e.config.ProjectionDebounce),
		forge.F("store", e.config.Store),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.stockledger" first (namespaced pattern).
	if cm.IsSet("extensions.stockledger") {
		if err := cm.Bind("extensions.stockledger", &cfg); err == nil {
			e.Logger().Debug("stockledger: loaded config from file",
				forge.F("key", "extensions.stockledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("stockledger: failed to bind extensions.stockledger config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "stockledger" key.
	if cm.IsSet("stockledger") {
		if err := cm.Bind("stockledger", &cfg); err == nil {
			e.Logger().Debug("stockledger: loaded config from file",
				forge.F("key", "stockledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("stockledger: failed to bind stockledger config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = defaults.Profiles
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaults.Timezone
	}
	if cfg.Store == "" {
		cfg.Store = defaults.Store
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.AtomicCatalog {
		yamlConfig.AtomicCatalog = true
	}
	if programmaticConfig.DisableProjection {
		yamlConfig.DisableProjection = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Slice and string fields: YAML takes precedence.
	if len(yamlConfig.Profiles) == 0 && len(programmaticConfig.Profiles) > 0 {
		yamlConfig.Profiles = programmaticConfig.Profiles
	}
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.Timezone == "" && programmaticConfig.Timezone != "" {
		yamlConfig.Timezone = programmaticConfig.Timezone
	}
	if yamlConfig.Store == "" && programmaticConfig.Store != "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.DSN == "" && programmaticConfig.DSN != "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.Database == "" && programmaticConfig.Database != "" {
		yamlConfig.Database = programmaticConfig.Database
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MaxAttempts == 0 && programmaticConfig.MaxAttempts != 0 {
		yamlConfig.MaxAttempts = programmaticConfig.MaxAttempts
	}
	if yamlConfig.ProjectionDebounce == 0 && programmaticConfig.ProjectionDebounce != 0 {
		yamlConfig.ProjectionDebounce = programmaticConfig.ProjectionDebounce
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
