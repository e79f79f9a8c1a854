package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/tip"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onSaleRecorded        []OnSaleRecorded
	onSaleDeleted         []OnSaleDeleted
	onStockInsufficient   []OnStockInsufficient
	onTransactionConflict []OnTransactionConflict
	onFlavorAdded         []OnFlavorAdded
	onFlavorToggled       []OnFlavorToggled
	onStockSet            []OnStockSet
	onFinanceUpdated      []OnFinanceUpdated
	onProjectionUpdated   []OnProjectionUpdated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSaleRecorded); ok {
		r.onSaleRecorded = append(r.onSaleRecorded, v)
	}
	if v, ok := p.(OnSaleDeleted); ok {
		r.onSaleDeleted = append(r.onSaleDeleted, v)
	}
	if v, ok := p.(OnStockInsufficient); ok {
		r.onStockInsufficient = append(r.onStockInsufficient, v)
	}
	if v, ok := p.(OnTransactionConflict); ok {
		r.onTransactionConflict = append(r.onTransactionConflict, v)
	}
	if v, ok := p.(OnFlavorAdded); ok {
		r.onFlavorAdded = append(r.onFlavorAdded, v)
	}
	if v, ok := p.(OnFlavorToggled); ok {
		r.onFlavorToggled = append(r.onFlavorToggled, v)
	}
	if v, ok := p.(OnStockSet); ok {
		r.onStockSet = append(r.onStockSet, v)
	}
	if v, ok := p.(OnFinanceUpdated); ok {
		r.onFinanceUpdated = append(r.onFinanceUpdated, v)
	}
	if v, ok := p.(OnProjectionUpdated); ok {
		r.onProjectionUpdated = append(r.onProjectionUpdated, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnSaleRecorded", reflect.TypeOf((*OnSaleRecorded)(nil)).Elem()},
	{"OnSaleDeleted", reflect.TypeOf((*OnSaleDeleted)(nil)).Elem()},
	{"OnStockInsufficient", reflect.TypeOf((*OnStockInsufficient)(nil)).Elem()},
	{"OnTransactionConflict", reflect.TypeOf((*OnTransactionConflict)(nil)).Elem()},
	{"OnFlavorAdded", reflect.TypeOf((*OnFlavorAdded)(nil)).Elem()},
	{"OnFlavorToggled", reflect.TypeOf((*OnFlavorToggled)(nil)).Elem()},
	{"OnStockSet", reflect.TypeOf((*OnStockSet)(nil)).Elem()},
	{"OnFinanceUpdated", reflect.TypeOf((*OnFinanceUpdated)(nil)).Elem()},
	{"OnProjectionUpdated", reflect.TypeOf((*OnProjectionUpdated)(nil)).Elem()},
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in list and logs failures. Hook errors
// never propagate to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l interface{}) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, l)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitSaleRecorded emits a sale recorded event.
func (r *Registry) EmitSaleRecorded(ctx context.Context, profile string, sales []*sale.Sale, t *tip.Tip) {
	emit(ctx, r, "OnSaleRecorded", func() []OnSaleRecorded { return r.onSaleRecorded }, func(p OnSaleRecorded) error {
		return p.OnSaleRecorded(ctx, profile, sales, t)
	})
}

// EmitSaleDeleted emits a sale deleted event.
func (r *Registry) EmitSaleDeleted(ctx context.Context, s *sale.Sale) {
	emit(ctx, r, "OnSaleDeleted", func() []OnSaleDeleted { return r.onSaleDeleted }, func(p OnSaleDeleted) error {
		return p.OnSaleDeleted(ctx, s)
	})
}

// EmitStockInsufficient emits an insufficient stock event.
func (r *Registry) EmitStockInsufficient(ctx context.Context, profile, flavor string, requested, available int64) {
	emit(ctx, r, "OnStockInsufficient", func() []OnStockInsufficient { return r.onStockInsufficient }, func(p OnStockInsufficient) error {
		return p.OnStockInsufficient(ctx, profile, flavor, requested, available)
	})
}

// EmitTransactionConflict emits a transaction conflict event.
func (r *Registry) EmitTransactionConflict(ctx context.Context, op string, attempt int, err error) {
	emit(ctx, r, "OnTransactionConflict", func() []OnTransactionConflict { return r.onTransactionConflict }, func(p OnTransactionConflict) error {
		return p.OnTransactionConflict(ctx, op, attempt, err)
	})
}

// EmitFlavorAdded emits a flavor added event.
func (r *Registry) EmitFlavorAdded(ctx context.Context, flavor string) {
	emit(ctx, r, "OnFlavorAdded", func() []OnFlavorAdded { return r.onFlavorAdded }, func(p OnFlavorAdded) error {
		return p.OnFlavorAdded(ctx, flavor)
	})
}

// EmitFlavorToggled emits a flavor toggled event.
func (r *Registry) EmitFlavorToggled(ctx context.Context, flavor string, enabled bool) {
	emit(ctx, r, "OnFlavorToggled", func() []OnFlavorToggled { return r.onFlavorToggled }, func(p OnFlavorToggled) error {
		return p.OnFlavorToggled(ctx, flavor, enabled)
	})
}

// EmitStockSet emits a manual stock entry event.
func (r *Registry) EmitStockSet(ctx context.Context, counts map[string]int64) {
	emit(ctx, r, "OnStockSet", func() []OnStockSet { return r.onStockSet }, func(p OnStockSet) error {
		return p.OnStockSet(ctx, counts)
	})
}

// EmitFinanceUpdated emits a finance setting change.
func (r *Registry) EmitFinanceUpdated(ctx context.Context, field string, value int64) {
	emit(ctx, r, "OnFinanceUpdated", func() []OnFinanceUpdated { return r.onFinanceUpdated }, func(p OnFinanceUpdated) error {
		return p.OnFinanceUpdated(ctx, field, value)
	})
}

// EmitProjectionUpdated emits a projection published event.
func (r *Registry) EmitProjectionUpdated(ctx context.Context, view *projection.View, elapsed time.Duration) {
	emit(ctx, r, "OnProjectionUpdated", func() []OnProjectionUpdated { return r.onProjectionUpdated }, func(p OnProjectionUpdated) error {
		return p.OnProjectionUpdated(ctx, view, elapsed)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the sales pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
