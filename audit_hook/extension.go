// Package audithook bridges ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/xraph/stockledger/plugin"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/tip"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnSaleRecorded        = (*Extension)(nil)
	_ plugin.OnSaleDeleted         = (*Extension)(nil)
	_ plugin.OnStockInsufficient   = (*Extension)(nil)
	_ plugin.OnTransactionConflict = (*Extension)(nil)
	_ plugin.OnFlavorAdded         = (*Extension)(nil)
	_ plugin.OnFlavorToggled       = (*Extension)(nil)
	_ plugin.OnStockSet            = (*Extension)(nil)
	_ plugin.OnFinanceUpdated      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Sale hooks
// ──────────────────────────────────────────────────

// OnSaleRecorded implements plugin.OnSaleRecorded. Each sale line and the
// tip are audited separately.
func (e *Extension) OnSaleRecorded(ctx context.Context, profile string, sales []*sale.Sale, t *tip.Tip) error {
	for _, s := range sales {
		_ = e.record(ctx, ActionSaleRecorded, SeverityInfo, OutcomeSuccess,
			ResourceSale, s.ID.String(), CategorySales, nil,
			"profile", profile,
			"flavor", s.Flavor,
			"qty", s.Qty,
			"unit_price", s.UnitPrice,
			"total", s.Total,
		)
	}
	if t != nil {
		_ = e.record(ctx, ActionTipRecorded, SeverityInfo, OutcomeSuccess,
			ResourceTip, t.ID.String(), CategorySales, nil,
			"profile", profile,
			"amount", t.Amount,
		)
	}
	return nil
}

// OnSaleDeleted implements plugin.OnSaleDeleted.
func (e *Extension) OnSaleDeleted(ctx context.Context, s *sale.Sale) error {
	return e.record(ctx, ActionSaleDeleted, SeverityWarning, OutcomeSuccess,
		ResourceSale, s.ID.String(), CategorySales, nil,
		"profile", s.Profile,
		"flavor", s.Flavor,
		"qty", s.Qty,
		"total", s.Total,
	)
}

// OnStockInsufficient implements plugin.OnStockInsufficient.
func (e *Extension) OnStockInsufficient(ctx context.Context, profile, flavor string, requested, available int64) error {
	return e.record(ctx, ActionSaleRejected, SeverityWarning, OutcomeFailure,
		ResourceInventory, flavor, CategoryStock, nil,
		"profile", profile,
		"flavor", flavor,
		"requested", requested,
		"available", available,
	)
}

// OnTransactionConflict implements plugin.OnTransactionConflict.
func (e *Extension) OnTransactionConflict(ctx context.Context, op string, attempt int, err error) error {
	return e.record(ctx, ActionTransactionConflict, SeverityInfo, OutcomeFailure,
		ResourceTransaction, op, CategorySystem, err,
		"op", op,
		"attempt", attempt,
	)
}

// ──────────────────────────────────────────────────
// Catalog, stock and finance hooks
// ──────────────────────────────────────────────────

// OnFlavorAdded implements plugin.OnFlavorAdded.
func (e *Extension) OnFlavorAdded(ctx context.Context, flavor string) error {
	return e.record(ctx, ActionFlavorAdded, SeverityInfo, OutcomeSuccess,
		ResourceSettings, flavor, CategoryCatalog, nil,
		"flavor", flavor,
	)
}

// OnFlavorToggled implements plugin.OnFlavorToggled.
func (e *Extension) OnFlavorToggled(ctx context.Context, flavor string, enabled bool) error {
	action := ActionFlavorDisabled
	if enabled {
		action = ActionFlavorEnabled
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceSettings, flavor, CategoryCatalog, nil,
		"flavor", flavor,
	)
}

// OnStockSet implements plugin.OnStockSet.
func (e *Extension) OnStockSet(ctx context.Context, counts map[string]int64) error {
	return e.record(ctx, ActionStockSet, SeverityWarning, OutcomeSuccess,
		ResourceInventory, "", CategoryStock, nil,
		"counts", maps.Clone(counts),
	)
}

// OnFinanceUpdated implements plugin.OnFinanceUpdated.
func (e *Extension) OnFinanceUpdated(ctx context.Context, field string, value int64) error {
	return e.record(ctx, ActionFinanceUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSettings, field, CategoryFinance, nil,
		"field", field,
		"value", value,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
