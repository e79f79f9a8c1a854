package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
)

var _ store.Tx = (*tx)(nil)

type tx struct {
	s  *Store
	db *gorm.DB

	// Singleton table -> version last read or written by this unit.
	// Zero means the row did not exist.
	versions map[string]int64
	changes  []store.Change
}

func newTx(s *Store, db *gorm.DB) *tx {
	return &tx{s: s, db: db, versions: make(map[string]int64)}
}

func (t *tx) GetSettings(_ context.Context) (*settings.Settings, error) {
	m := new(settingsModel)
	err := t.db.Where("id = ?", settingsRowID).Take(m).Error
	if err != nil {
		if isNoRows(err) {
			t.versions[m.TableName()] = 0
			return nil, stockledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("stockledger/sqlite: get settings: %w", err)
	}
	t.versions[m.TableName()] = m.Version
	return fromSettingsModel(m), nil
}

func (t *tx) PutSettings(_ context.Context, st *settings.Settings) error {
	m := toSettingsModel(st)
	at, err := t.writeSingleton(m.TableName(), settingsRowID, map[string]any{
		"unit_price":      m.UnitPrice,
		"box_cost":        m.BoxCost,
		"boxes_purchased": m.BoxesPurchased,
		"all_flavors":     m.AllFlavors,
		"enabled_flavors": m.EnabledFlavors,
	})
	if err != nil {
		return err
	}
	st.UpdatedAt = fromNanos(at)
	t.changes = append(t.changes, store.Change{
		Topic: store.TopicSettings, Op: store.OpPut, Key: store.SettingsKey, At: st.UpdatedAt,
	})
	return nil
}

func (t *tx) GetInventory(_ context.Context) (*inventory.Inventory, error) {
	m := new(inventoryModel)
	err := t.db.Where("id = ?", inventoryRowID).Take(m).Error
	if err != nil {
		if isNoRows(err) {
			t.versions[m.TableName()] = 0
			return nil, stockledger.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("stockledger/sqlite: get inventory: %w", err)
	}
	t.versions[m.TableName()] = m.Version
	return fromInventoryModel(m), nil
}

func (t *tx) PutInventory(_ context.Context, inv *inventory.Inventory) error {
	m := toInventoryModel(inv)
	at, err := t.writeSingleton(m.TableName(), inventoryRowID, map[string]any{
		"counts": m.Counts,
	})
	if err != nil {
		return err
	}
	inv.UpdatedAt = fromNanos(at)
	t.changes = append(t.changes, store.Change{
		Topic: store.TopicInventory, Op: store.OpPut, Key: store.InventoryKey, At: inv.UpdatedAt,
	})
	return nil
}

func (t *tx) GetSale(_ context.Context, profile string, saleID id.SaleID) (*sale.Sale, error) {
	m := new(saleModel)
	err := t.db.Where("id = ? AND profile = ?", saleID.String(), profile).Take(m).Error
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrSaleNotFound
		}
		return nil, fmt.Errorf("stockledger/sqlite: get sale: %w", err)
	}
	return fromSaleModel(m)
}

// CreateSale stamps CreatedAt from the store clock when unset.
func (t *tx) CreateSale(_ context.Context, sl *sale.Sale) error {
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = t.s.clock.Now()
	}
	if err := t.db.Create(toSaleModel(sl)).Error; err != nil {
		return fmt.Errorf("stockledger/sqlite: create sale: %w", err)
	}
	t.changes = append(t.changes, store.Change{
		Topic: store.TopicSales, Op: store.OpPut, Profile: sl.Profile,
		Key: store.SaleKey(sl.Profile, sl.ID), At: sl.CreatedAt,
	})
	return nil
}

// DeleteSale removes a sale. A sale already gone is a conflict: the unit
// read it, so someone else removed it since.
func (t *tx) DeleteSale(_ context.Context, profile string, saleID id.SaleID) error {
	res := t.db.Where("id = ? AND profile = ?", saleID.String(), profile).Delete(&saleModel{})
	if res.Error != nil {
		return fmt.Errorf("stockledger/sqlite: delete sale: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("stockledger/sqlite: delete sale %s: %w", saleID, stockledger.ErrConflict)
	}
	t.changes = append(t.changes, store.Change{
		Topic: store.TopicSales, Op: store.OpDelete, Profile: profile,
		Key: store.SaleKey(profile, saleID), At: t.s.clock.Now(),
	})
	return nil
}

// CreateTip stamps CreatedAt from the store clock when unset.
func (t *tx) CreateTip(_ context.Context, tp *tip.Tip) error {
	if tp.CreatedAt.IsZero() {
		tp.CreatedAt = t.s.clock.Now()
	}
	if err := t.db.Create(toTipModel(tp)).Error; err != nil {
		return fmt.Errorf("stockledger/sqlite: create tip: %w", err)
	}
	t.changes = append(t.changes, store.Change{
		Topic: store.TopicTips, Op: store.OpPut, Profile: tp.Profile,
		Key: store.TipKey(tp.Profile, tp.ID), At: tp.CreatedAt,
	})
	return nil
}

// writeSingleton inserts or updates a singleton row guarded by the version
// this unit last saw. Rows the unit never read are guarded by their current
// version. It returns the stamped update time in Unix nanoseconds.
func (t *tx) writeSingleton(table, rowID string, fields map[string]any) (int64, error) {
	seen, ok := t.versions[table]
	if !ok {
		var current []int64
		if err := t.db.Table(table).Where("id = ?", rowID).Pluck("version", &current).Error; err != nil {
			return 0, fmt.Errorf("stockledger/sqlite: read %s version: %w", table, err)
		}
		if len(current) > 0 {
			seen = current[0]
		}
	}

	at := t.s.clock.Now().UnixNano()
	fields["version"] = seen + 1
	fields["updated_at"] = at

	var res *gorm.DB
	if seen == 0 {
		fields["id"] = rowID
		res = t.db.Table(table).Clauses(clause.OnConflict{DoNothing: true}).Create(fields)
	} else {
		res = t.db.Table(table).Where("id = ? AND version = ?", rowID, seen).Updates(fields)
	}
	if res.Error != nil {
		return 0, fmt.Errorf("stockledger/sqlite: write %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("stockledger/sqlite: write %s: version %d is stale: %w", table, seen, stockledger.ErrConflict)
	}

	t.versions[table] = seen + 1
	return at, nil
}
