// Package plugin provides an extensible plugin system for the ledger.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/tip"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnSaleRecorded is called after a sale commits. t is nil when no tip was given.
type OnSaleRecorded interface {
	Plugin
	OnSaleRecorded(ctx context.Context, profile string, sales []*sale.Sale, t *tip.Tip) error
}

// OnSaleDeleted is called after a sale is deleted and its units restocked.
type OnSaleDeleted interface {
	Plugin
	OnSaleDeleted(ctx context.Context, s *sale.Sale) error
}

// OnStockInsufficient is called when a sale is rejected for lack of stock.
type OnStockInsufficient interface {
	Plugin
	OnStockInsufficient(ctx context.Context, profile, flavor string, requested, available int64) error
}

// OnTransactionConflict is called each time an atomic unit loses a race.
// attempt counts from 1.
type OnTransactionConflict interface {
	Plugin
	OnTransactionConflict(ctx context.Context, op string, attempt int, err error) error
}

// ──────────────────────────────────────────────────
// Catalog and stock hooks
// ──────────────────────────────────────────────────

// OnFlavorAdded is called when a new flavor joins the catalog.
type OnFlavorAdded interface {
	Plugin
	OnFlavorAdded(ctx context.Context, flavor string) error
}

// OnFlavorToggled is called when a flavor is enabled or disabled for sale.
type OnFlavorToggled interface {
	Plugin
	OnFlavorToggled(ctx context.Context, flavor string, enabled bool) error
}

// OnStockSet is called after a manual stock entry.
type OnStockSet interface {
	Plugin
	OnStockSet(ctx context.Context, counts map[string]int64) error
}

// OnFinanceUpdated is called when a finance setting changes.
// field is "boxes_purchased" or "box_cost".
type OnFinanceUpdated interface {
	Plugin
	OnFinanceUpdated(ctx context.Context, field string, value int64) error
}

// ──────────────────────────────────────────────────
// Projection hooks
// ──────────────────────────────────────────────────

// OnProjectionUpdated is called after the live worker publishes a new view.
type OnProjectionUpdated interface {
	Plugin
	OnProjectionUpdated(ctx context.Context, view *projection.View, elapsed time.Duration) error
}
