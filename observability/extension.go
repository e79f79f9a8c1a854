// Package observability provides a metrics extension for the ledger that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/stockledger/plugin"
	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/tip"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnSaleRecorded        = (*MetricsExtension)(nil)
	_ plugin.OnSaleDeleted         = (*MetricsExtension)(nil)
	_ plugin.OnStockInsufficient   = (*MetricsExtension)(nil)
	_ plugin.OnTransactionConflict = (*MetricsExtension)(nil)
	_ plugin.OnFlavorAdded         = (*MetricsExtension)(nil)
	_ plugin.OnFlavorToggled       = (*MetricsExtension)(nil)
	_ plugin.OnStockSet            = (*MetricsExtension)(nil)
	_ plugin.OnFinanceUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnProjectionUpdated   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for metric gauges.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a ledger plugin to automatically track sales metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Sale metrics
	SalesRecorded Counter
	UnitsSold     Counter
	Revenue       Counter
	SaleQty       Histogram
	SalesDeleted  Counter
	UnitsRestock  Counter
	TipsRecorded  Counter
	TipAmount     Counter
	SalesRejected Counter

	// Transaction metrics
	TxConflicts Counter

	// Catalog and stock metrics
	FlavorsAdded   Counter
	FlavorsToggled Counter
	StockSets      Counter
	FinanceUpdates Counter

	// Projection metrics
	ProjectionRefreshes Counter
	ProjectionLatency   Histogram
	RemainingUnits      Gauge
	SoldUnits           Gauge
	NetToSplit          Gauge
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Sale metrics
		SalesRecorded: factory.Counter("stockledger.sale.recorded"),
		UnitsSold:     factory.Counter("stockledger.sale.units"),
		Revenue:       factory.Counter("stockledger.sale.revenue"),
		SaleQty:       factory.Histogram("stockledger.sale.qty"),
		SalesDeleted:  factory.Counter("stockledger.sale.deleted"),
		UnitsRestock:  factory.Counter("stockledger.sale.units_restocked"),
		TipsRecorded:  factory.Counter("stockledger.tip.recorded"),
		TipAmount:     factory.Counter("stockledger.tip.amount"),
		SalesRejected: factory.Counter("stockledger.sale.rejected"),

		// Transaction metrics
		TxConflicts: factory.Counter("stockledger.tx.conflicts"),

		// Catalog and stock metrics
		FlavorsAdded:   factory.Counter("stockledger.flavor.added"),
		FlavorsToggled: factory.Counter("stockledger.flavor.toggled"),
		StockSets:      factory.Counter("stockledger.stock.set"),
		FinanceUpdates: factory.Counter("stockledger.finance.updated"),

		// Projection metrics
		ProjectionRefreshes: factory.Counter("stockledger.projection.refreshes"),
		ProjectionLatency:   factory.Histogram("stockledger.projection.latency_ms"),
		RemainingUnits:      factory.Gauge("stockledger.stock.remaining_units"),
		SoldUnits:           factory.Gauge("stockledger.stock.sold_units"),
		NetToSplit:          factory.Gauge("stockledger.finance.net_to_split"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Sale hooks
// ──────────────────────────────────────────────────

// OnSaleRecorded implements plugin.OnSaleRecorded.
func (m *MetricsExtension) OnSaleRecorded(_ context.Context, _ string, sales []*sale.Sale, t *tip.Tip) error {
	m.SalesRecorded.Inc()
	var qty, total int64
	for _, s := range sales {
		qty += s.Qty
		total += s.Total
	}
	m.UnitsSold.Add(float64(qty))
	m.Revenue.Add(float64(total))
	m.SaleQty.Observe(float64(qty))

	if t != nil {
		m.TipsRecorded.Inc()
		m.TipAmount.Add(float64(t.Amount))
	}
	return nil
}

// OnSaleDeleted implements plugin.OnSaleDeleted.
func (m *MetricsExtension) OnSaleDeleted(_ context.Context, s *sale.Sale) error {
	m.SalesDeleted.Inc()
	if s.Qty > 0 {
		m.UnitsRestock.Add(float64(s.Qty))
	}
	return nil
}

// OnStockInsufficient implements plugin.OnStockInsufficient.
func (m *MetricsExtension) OnStockInsufficient(_ context.Context, _, _ string, _, _ int64) error {
	m.SalesRejected.Inc()
	return nil
}

// OnTransactionConflict implements plugin.OnTransactionConflict.
func (m *MetricsExtension) OnTransactionConflict(_ context.Context, _ string, _ int, _ error) error {
	m.TxConflicts.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Catalog and stock hooks
// ──────────────────────────────────────────────────

// OnFlavorAdded implements plugin.OnFlavorAdded.
func (m *MetricsExtension) OnFlavorAdded(_ context.Context, _ string) error {
	m.FlavorsAdded.Inc()
	return nil
}

// OnFlavorToggled implements plugin.OnFlavorToggled.
func (m *MetricsExtension) OnFlavorToggled(_ context.Context, _ string, _ bool) error {
	m.FlavorsToggled.Inc()
	return nil
}

// OnStockSet implements plugin.OnStockSet.
func (m *MetricsExtension) OnStockSet(_ context.Context, _ map[string]int64) error {
	m.StockSets.Inc()
	return nil
}

// OnFinanceUpdated implements plugin.OnFinanceUpdated.
func (m *MetricsExtension) OnFinanceUpdated(_ context.Context, _ string, _ int64) error {
	m.FinanceUpdates.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Projection hooks
// ──────────────────────────────────────────────────

// OnProjectionUpdated implements plugin.OnProjectionUpdated.
func (m *MetricsExtension) OnProjectionUpdated(_ context.Context, v *projection.View, elapsed time.Duration) error {
	m.ProjectionRefreshes.Inc()
	m.ProjectionLatency.Observe(float64(elapsed.Milliseconds()))
	m.RemainingUnits.Set(float64(v.Stock.RemainingUnits))
	m.SoldUnits.Set(float64(v.Stock.SoldUnits))
	m.NetToSplit.Set(float64(v.Finance.NetToSplit.Amount))
	return nil
}
