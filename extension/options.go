package extension

import (
	"time"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/plugin"
	"github.com/xraph/stockledger/store"
)

// Option configures the StockLedger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a stockledger.Option through to the underlying engine.
func WithLedgerOption(opt stockledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, stockledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithProfiles sets the sellers allowed to record sales.
func WithProfiles(profiles ...string) Option {
	return func(e *Extension) { e.config.Profiles = profiles }
}

// WithMaxAttempts sets the retry budget of atomic units.
func WithMaxAttempts(n int) Option {
	return func(e *Extension) { e.config.MaxAttempts = n }
}

// WithAtomicCatalog runs catalog additions as one atomic unit.
func WithAtomicCatalog() Option {
	return func(e *Extension) { e.config.AtomicCatalog = true }
}

// WithTimezone sets the zone used to group sale history into days.
func WithTimezone(name string) Option {
	return func(e *Extension) { e.config.Timezone = name }
}

// WithProjectionDebounce sets how long the live projection coalesces changes.
func WithProjectionDebounce(d time.Duration) Option {
	return func(e *Extension) { e.config.ProjectionDebounce = d }
}

// WithDisableProjection turns off the live projection worker.
func WithDisableProjection() Option {
	return func(e *Extension) { e.config.DisableProjection = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBackend selects a backend by driver name and DSN.
func WithBackend(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Store = driver
		e.config.DSN = dsn
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
