package memory

import (
	"context"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
)

var _ store.Tx = (*tx)(nil)

// write is one buffered document mutation. Exactly one payload is set.
type write struct {
	settings  *settings.Settings
	inventory *inventory.Inventory
	sale      *sale.Sale
	tip       *tip.Tip
	delete    bool
}

type tx struct {
	s      *Store
	reads  map[string]uint64
	writes map[string]write
	order  []string
}

func newTx(s *Store) *tx {
	return &tx{
		s:      s,
		reads:  make(map[string]uint64),
		writes: make(map[string]write),
	}
}

// track records the version of key the first time it is read.
// Caller holds s.mu.
func (t *tx) track(key string) {
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = t.s.versions[key]
	}
}

func (t *tx) buffer(key string, w write) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

func (t *tx) GetSettings(_ context.Context) (*settings.Settings, error) {
	if w, ok := t.writes[store.SettingsKey]; ok {
		return w.settings.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.track(store.SettingsKey)
	if t.s.settings == nil {
		return nil, stockledger.ErrSettingsNotFound
	}
	return t.s.settings.Clone(), nil
}

func (t *tx) PutSettings(_ context.Context, st *settings.Settings) error {
	t.buffer(store.SettingsKey, write{settings: st.Clone()})
	return nil
}

func (t *tx) GetInventory(_ context.Context) (*inventory.Inventory, error) {
	if w, ok := t.writes[store.InventoryKey]; ok {
		return w.inventory.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.track(store.InventoryKey)
	if t.s.inventory == nil {
		return nil, stockledger.ErrInventoryNotFound
	}
	return t.s.inventory.Clone(), nil
}

func (t *tx) PutInventory(_ context.Context, inv *inventory.Inventory) error {
	t.buffer(store.InventoryKey, write{inventory: inv.Clone()})
	return nil
}

func (t *tx) GetSale(_ context.Context, profile string, saleID id.SaleID) (*sale.Sale, error) {
	key := store.SaleKey(profile, saleID)
	if w, ok := t.writes[key]; ok {
		if w.delete {
			return nil, stockledger.ErrSaleNotFound
		}
		return w.sale.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.track(key)
	sl, ok := t.s.sales[profile][saleID.String()]
	if !ok {
		return nil, stockledger.ErrSaleNotFound
	}
	return sl.Clone(), nil
}

// CreateSale stamps CreatedAt from the store clock when unset.
func (t *tx) CreateSale(_ context.Context, sl *sale.Sale) error {
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = t.s.clock.Now()
	}
	t.buffer(store.SaleKey(sl.Profile, sl.ID), write{sale: sl.Clone()})
	return nil
}

func (t *tx) DeleteSale(_ context.Context, profile string, saleID id.SaleID) error {
	t.buffer(store.SaleKey(profile, saleID), write{
		sale:   &sale.Sale{ID: saleID, Profile: profile},
		delete: true,
	})
	return nil
}

// CreateTip stamps CreatedAt from the store clock when unset.
func (t *tx) CreateTip(_ context.Context, tp *tip.Tip) error {
	if tp.CreatedAt.IsZero() {
		tp.CreatedAt = t.s.clock.Now()
	}
	t.buffer(store.TipKey(tp.Profile, tp.ID), write{tip: tp.Clone()})
	return nil
}
