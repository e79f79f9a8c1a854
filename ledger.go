package stockledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/plugin"
	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
	"github.com/xraph/stockledger/types"
)

// DefaultProfiles are the operators of the stand.
var DefaultProfiles = []string{"JP", "Pau"}

// DefaultMaxAttempts is the retry budget of one atomic operation.
const DefaultMaxAttempts = 5

// Ledger is the transaction engine of the stand.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Live projection
	subsMu      sync.Mutex
	subs        map[*subscriber]struct{}
	latest      *projection.View
	live        bool
	cancelWatch context.CancelFunc
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Configuration
	profiles      []string
	maxAttempts   int
	retryInitial  time.Duration
	retryMax      time.Duration
	atomicCatalog bool
	currency      string
	location      *time.Location
	projection    bool
	debounce      time.Duration
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		subs:         make(map[*subscriber]struct{}),
		stopChan:     make(chan struct{}),
		profiles:     slices.Clone(DefaultProfiles),
		maxAttempts:  DefaultMaxAttempts,
		retryInitial: 10 * time.Millisecond,
		retryMax:     250 * time.Millisecond,
		currency:     types.DefaultCurrency,
		location:     time.Local,
		projection:   true,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithProfiles sets the closed set of operator profiles. Empty names are ignored.
func WithProfiles(profiles ...string) Option {
	return func(l *Ledger) {
		var ps []string
		for _, p := range profiles {
			if p != "" && !slices.Contains(ps, p) {
				ps = append(ps, p)
			}
		}
		if len(ps) > 0 {
			l.profiles = ps
		}
	}
}

// WithMaxAttempts sets how many times an atomic operation is tried before
// giving up with ErrConflict.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the exponential backoff bounds between attempts.
func WithRetryBackoff(initial, maxInterval time.Duration) Option {
	return func(l *Ledger) {
		l.retryInitial = initial
		l.retryMax = maxInterval
	}
}

// WithAtomicCatalog makes AddFlavor write Settings and Inventory in one
// atomic unit instead of two separate read-modify-writes.
func WithAtomicCatalog() Option {
	return func(l *Ledger) {
		l.atomicCatalog = true
	}
}

// WithCurrency sets the currency of projected money values.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = currency
		}
	}
}

// WithLocation sets the time zone that defines history day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.location = loc
		}
	}
}

// WithProjection enables or disables the live projection worker.
func WithProjection(enabled bool) Option {
	return func(l *Ledger) {
		l.projection = enabled
	}
}

// WithProjectionDebounce coalesces change notifications arriving within d
// into one recompute.
func WithProjectionDebounce(d time.Duration) Option {
	return func(l *Ledger) {
		l.debounce = d
	}
}

// Start migrates the store, initializes missing documents and begins
// background workers.
func (l *Ledger) Start(ctx context.Context) error {
	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	if err := l.EnsureDefaults(ctx); err != nil {
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	if l.projection {
		if err := l.startLive(ctx); err != nil {
			return err
		}
	}

	l.logger.Info("stockledger started",
		"profiles", l.profiles,
		"max_attempts", l.maxAttempts,
		"atomic_catalog", l.atomicCatalog,
		"projection", l.projection,
	)

	return nil
}

// Stop shuts down the Ledger and closes the store.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.cancelWatch != nil {
			l.cancelWatch()
		}
	})
	l.wg.Wait()
	l.closeSubscribers()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Profiles returns the configured operator profiles.
func (l *Ledger) Profiles() []string { return slices.Clone(l.profiles) }

// ──────────────────────────────────────────────────
// Initialization
// ──────────────────────────────────────────────────

// EnsureDefaults creates Settings and Inventory when they do not exist yet.
// Existing documents are kept; an existing inventory is backfilled.
func (l *Ledger) EnsureDefaults(ctx context.Context) error {
	_, err := l.atomically(ctx, "ensure_defaults", func(ctx context.Context, tx store.Tx) error {
		st, err := tx.GetSettings(ctx)
		if errors.Is(err, ErrSettingsNotFound) {
			st = settings.Defaults()
			if err := tx.PutSettings(ctx, st); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return ensureInventory(ctx, tx, st)
	})
	return err
}

// EnsureInventory backfills every catalog flavor missing from Inventory with 0.
func (l *Ledger) EnsureInventory(ctx context.Context) error {
	_, err := l.atomically(ctx, "ensure_inventory", func(ctx context.Context, tx store.Tx) error {
		st, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		return ensureInventory(ctx, tx, st)
	})
	return err
}

func ensureInventory(ctx context.Context, tx store.Tx, st *settings.Settings) error {
	inv, err := tx.GetInventory(ctx)
	if errors.Is(err, ErrInventoryNotFound) {
		return tx.PutInventory(ctx, inventory.New(st.AllFlavors))
	}
	if err != nil {
		return err
	}
	if inv.Backfill(st.AllFlavors) {
		return tx.PutInventory(ctx, inv)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Settings returns the current settings.
func (l *Ledger) Settings(ctx context.Context) (*settings.Settings, error) {
	return l.store.GetSettings(ctx)
}

// Inventory returns the current inventory.
func (l *Ledger) Inventory(ctx context.Context) (*inventory.Inventory, error) {
	return l.store.GetInventory(ctx)
}

// ListSales returns the sales of a profile, newest first.
func (l *Ledger) ListSales(ctx context.Context, profile string, opts sale.ListOpts) ([]*sale.Sale, error) {
	if err := l.checkProfile(profile); err != nil {
		return nil, err
	}
	return l.store.ListSales(ctx, profile, opts)
}

// ListTips returns the tips of a profile, newest first.
func (l *Ledger) ListTips(ctx context.Context, profile string, opts tip.ListOpts) ([]*tip.Tip, error) {
	if err := l.checkProfile(profile); err != nil {
		return nil, err
	}
	return l.store.ListTips(ctx, profile, opts)
}

// ──────────────────────────────────────────────────
// Stock and finance editing
// ──────────────────────────────────────────────────

// SetStock overwrites Inventory with the given counts. Only catalog flavors
// are kept, negative values become 0 and flavors absent from counts keep
// their current value. It is a plain overwrite, not serialized with sales.
func (l *Ledger) SetStock(ctx context.Context, counts map[string]int64) (*inventory.Inventory, error) {
	st, err := l.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	current, err := l.store.GetInventory(ctx)
	if err != nil && !errors.Is(err, ErrInventoryNotFound) {
		return nil, err
	}

	inv := inventory.New(st.AllFlavors)
	for _, f := range st.AllFlavors {
		if n, ok := counts[f]; ok {
			inv.Counts[f] = max(n, 0)
		} else {
			inv.Counts[f] = max(current.Get(f), 0)
		}
	}

	if err := l.store.PutInventory(ctx, inv); err != nil {
		return nil, err
	}

	l.plugins.EmitStockSet(ctx, inv.Counts)
	l.logger.Info("stock set", "total", inv.Total())
	return inv, nil
}

// SetBoxesPurchased records how many boxes were bought. Negative values become 0.
func (l *Ledger) SetBoxesPurchased(ctx context.Context, n int64) (*settings.Settings, error) {
	return l.updateFinance(ctx, "boxes_purchased", max(n, 0), func(st *settings.Settings, v int64) {
		st.BoxesPurchased = v
	})
}

// SetBoxCost records the cost of one box. Negative values become 0.
func (l *Ledger) SetBoxCost(ctx context.Context, n int64) (*settings.Settings, error) {
	return l.updateFinance(ctx, "box_cost", max(n, 0), func(st *settings.Settings, v int64) {
		st.BoxCost = v
	})
}

func (l *Ledger) updateFinance(ctx context.Context, field string, value int64, apply func(*settings.Settings, int64)) (*settings.Settings, error) {
	var out *settings.Settings
	_, err := l.atomically(ctx, "set_"+field, func(ctx context.Context, tx store.Tx) error {
		st, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		apply(st, value)
		out = st
		return tx.PutSettings(ctx, st)
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitFinanceUpdated(ctx, field, value)
	l.logger.Info("finance updated", "field", field, "value", value)
	return out, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (l *Ledger) checkProfile(profile string) error {
	if !slices.Contains(l.profiles, profile) {
		return ValidationError{
			Field:   "profile",
			Message: fmt.Sprintf("%q is not one of %v", profile, l.profiles),
		}
	}
	return nil
}

func (l *Ledger) projectionOptions() projection.Options {
	return projection.Options{Currency: l.currency, Location: l.location}
}
