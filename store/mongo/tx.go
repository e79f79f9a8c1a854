package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	ledgerstore "github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
)

var _ ledgerstore.Tx = (*tx)(nil)

// tx routes every operation through the session context so it joins the
// transaction regardless of the context the caller passes.
type tx struct {
	s   *Store
	ctx context.Context
}

func (t *tx) GetSettings(context.Context) (*settings.Settings, error) {
	return t.s.GetSettings(t.ctx)
}

func (t *tx) PutSettings(_ context.Context, st *settings.Settings) error {
	st.UpdatedAt = t.s.clock.Now()
	if err := t.s.replace(t.ctx, colSettings, settingsDocID, toSettingsModel(st)); err != nil {
		return fmt.Errorf("stockledger/mongo: put settings: %w", err)
	}
	return nil
}

func (t *tx) GetInventory(context.Context) (*inventory.Inventory, error) {
	return t.s.GetInventory(t.ctx)
}

func (t *tx) PutInventory(_ context.Context, inv *inventory.Inventory) error {
	inv.UpdatedAt = t.s.clock.Now()
	if err := t.s.replace(t.ctx, colInventory, inventoryDocID, toInventoryModel(inv)); err != nil {
		return fmt.Errorf("stockledger/mongo: put inventory: %w", err)
	}
	return nil
}

func (t *tx) GetSale(_ context.Context, profile string, saleID id.SaleID) (*sale.Sale, error) {
	var m saleModel
	err := t.s.db.Collection(colSales).
		FindOne(t.ctx, bson.M{"_id": saleID.String(), "profile": profile}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stockledger.ErrSaleNotFound
		}
		return nil, fmt.Errorf("stockledger/mongo: get sale: %w", err)
	}
	return fromSaleModel(&m)
}

// CreateSale stamps CreatedAt from the store clock when unset.
func (t *tx) CreateSale(_ context.Context, sl *sale.Sale) error {
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = t.s.clock.Now()
	}
	if _, err := t.s.db.Collection(colSales).InsertOne(t.ctx, toSaleModel(sl)); err != nil {
		return fmt.Errorf("stockledger/mongo: create sale: %w", err)
	}
	return nil
}

func (t *tx) DeleteSale(_ context.Context, profile string, saleID id.SaleID) error {
	res, err := t.s.db.Collection(colSales).
		DeleteOne(t.ctx, bson.M{"_id": saleID.String(), "profile": profile})
	if err != nil {
		return fmt.Errorf("stockledger/mongo: delete sale: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("stockledger/mongo: delete sale %s: %w", saleID, stockledger.ErrConflict)
	}
	return nil
}

// CreateTip stamps CreatedAt from the store clock when unset.
func (t *tx) CreateTip(_ context.Context, tp *tip.Tip) error {
	if tp.CreatedAt.IsZero() {
		tp.CreatedAt = t.s.clock.Now()
	}
	if _, err := t.s.db.Collection(colTips).InsertOne(t.ctx, toTipModel(tp)); err != nil {
		return fmt.Errorf("stockledger/mongo: create tip: %w", err)
	}
	return nil
}
