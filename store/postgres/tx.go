package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
)

var _ store.Tx = (*tx)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tx struct {
	s *Store
	q pgx.Tx
}

func (t *tx) GetSettings(ctx context.Context) (*settings.Settings, error) {
	return getSettings(ctx, t.q)
}

func (t *tx) PutSettings(ctx context.Context, st *settings.Settings) error {
	return putSettings(ctx, t.q, st, t.s.clock.Now())
}

func (t *tx) GetInventory(ctx context.Context) (*inventory.Inventory, error) {
	return getInventory(ctx, t.q)
}

func (t *tx) PutInventory(ctx context.Context, inv *inventory.Inventory) error {
	return putInventory(ctx, t.q, inv, t.s.clock.Now())
}

func (t *tx) GetSale(ctx context.Context, profile string, saleID id.SaleID) (*sale.Sale, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, profile, flavor, qty, unit_price, total, created_at FROM ledger_sales
		 WHERE id = $1 AND profile = $2`, saleID.String(), profile)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: get sale: %w", err)
	}
	sl, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stockledger.ErrSaleNotFound
		}
		return nil, fmt.Errorf("stockledger/postgres: get sale: %w", err)
	}
	return sl, nil
}

// CreateSale stamps CreatedAt from the store clock when unset.
func (t *tx) CreateSale(ctx context.Context, sl *sale.Sale) error {
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = t.s.clock.Now()
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO ledger_sales (id, profile, flavor, qty, unit_price, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sl.ID.String(), sl.Profile, sl.Flavor, sl.Qty, sl.UnitPrice, sl.Total, sl.CreatedAt)
	if err != nil {
		return fmt.Errorf("stockledger/postgres: create sale: %w", err)
	}
	return nil
}

func (t *tx) DeleteSale(ctx context.Context, profile string, saleID id.SaleID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM ledger_sales WHERE id = $1 AND profile = $2`, saleID.String(), profile)
	if err != nil {
		return fmt.Errorf("stockledger/postgres: delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stockledger/postgres: delete sale %s: %w", saleID, stockledger.ErrConflict)
	}
	return nil
}

// CreateTip stamps CreatedAt from the store clock when unset.
func (t *tx) CreateTip(ctx context.Context, tp *tip.Tip) error {
	if tp.CreatedAt.IsZero() {
		tp.CreatedAt = t.s.clock.Now()
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO ledger_tips (id, profile, amount, created_at) VALUES ($1, $2, $3, $4)`,
		tp.ID.String(), tp.Profile, tp.Amount, tp.CreatedAt)
	if err != nil {
		return fmt.Errorf("stockledger/postgres: create tip: %w", err)
	}
	return nil
}

// ==================== Shared queries ====================

func getSettings(ctx context.Context, q querier) (*settings.Settings, error) {
	st := new(settings.Settings)
	err := q.QueryRow(ctx,
		`SELECT unit_price, box_cost, boxes_purchased, all_flavors, enabled_flavors, updated_at
		 FROM ledger_settings WHERE id = $1`, settingsRowID).
		Scan(&st.UnitPrice, &st.BoxCost, &st.BoxesPurchased, &st.AllFlavors, &st.EnabledFlavors, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stockledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("stockledger/postgres: get settings: %w", err)
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func putSettings(ctx context.Context, q querier, st *settings.Settings, at time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO ledger_settings (id, unit_price, box_cost, boxes_purchased, all_flavors, enabled_flavors, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     unit_price = EXCLUDED.unit_price,
		     box_cost = EXCLUDED.box_cost,
		     boxes_purchased = EXCLUDED.boxes_purchased,
		     all_flavors = EXCLUDED.all_flavors,
		     enabled_flavors = EXCLUDED.enabled_flavors,
		     updated_at = EXCLUDED.updated_at`,
		settingsRowID, st.UnitPrice, st.BoxCost, st.BoxesPurchased,
		nonNil(st.AllFlavors), nonNil(st.EnabledFlavors), at)
	if err != nil {
		return fmt.Errorf("stockledger/postgres: put settings: %w", err)
	}
	st.UpdatedAt = at
	return nil
}

func getInventory(ctx context.Context, q querier) (*inventory.Inventory, error) {
	inv := new(inventory.Inventory)
	err := q.QueryRow(ctx,
		`SELECT counts, updated_at FROM ledger_inventory WHERE id = $1`, inventoryRowID).
		Scan(&inv.Counts, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stockledger.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("stockledger/postgres: get inventory: %w", err)
	}
	if inv.Counts == nil {
		inv.Counts = make(map[string]int64)
	}
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, nil
}

func putInventory(ctx context.Context, q querier, inv *inventory.Inventory, at time.Time) error {
	counts := inv.Counts
	if counts == nil {
		counts = map[string]int64{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO ledger_inventory (id, counts, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET counts = EXCLUDED.counts, updated_at = EXCLUDED.updated_at`,
		inventoryRowID, counts, at)
	if err != nil {
		return fmt.Errorf("stockledger/postgres: put inventory: %w", err)
	}
	inv.UpdatedAt = at
	return nil
}

func scanSale(row pgx.CollectableRow) (*sale.Sale, error) {
	var (
		rawID string
		sl    sale.Sale
	)
	if err := row.Scan(&rawID, &sl.Profile, &sl.Flavor, &sl.Qty, &sl.UnitPrice, &sl.Total, &sl.CreatedAt); err != nil {
		return nil, err
	}
	saleID, err := id.ParseSaleID(rawID)
	if err != nil {
		return nil, err
	}
	sl.ID = saleID
	sl.CreatedAt = sl.CreatedAt.UTC()
	return &sl, nil
}

func scanTip(row pgx.CollectableRow) (*tip.Tip, error) {
	var (
		rawID string
		tp    tip.Tip
	)
	if err := row.Scan(&rawID, &tp.Profile, &tp.Amount, &tp.CreatedAt); err != nil {
		return nil, err
	}
	tipID, err := id.ParseTipID(rawID)
	if err != nil {
		return nil, err
	}
	tp.ID = tipID
	tp.CreatedAt = tp.CreatedAt.UTC()
	return &tp, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
