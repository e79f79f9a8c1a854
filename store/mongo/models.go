package mongo

import (
	"time"

	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/tip"
)

// Singleton document IDs.
const (
	settingsDocID  = "app"
	inventoryDocID = "current"
)

// ==================== Settings model ====================

type settingsModel struct {
	ID             string    `bson:"_id"`
	UnitPrice      int64     `bson:"unit_price"`
	BoxCost        int64     `bson:"box_cost"`
	BoxesPurchased int64     `bson:"boxes_purchased"`
	AllFlavors     []string  `bson:"all_flavors"`
	EnabledFlavors []string  `bson:"enabled_flavors"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toSettingsModel(s *settings.Settings) *settingsModel {
	return &settingsModel{
		ID:             settingsDocID,
		UnitPrice:      s.UnitPrice,
		BoxCost:        s.BoxCost,
		BoxesPurchased: s.BoxesPurchased,
		AllFlavors:     nonNil(s.AllFlavors),
		EnabledFlavors: nonNil(s.EnabledFlavors),
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromSettingsModel(m *settingsModel) *settings.Settings {
	return &settings.Settings{
		UnitPrice:      m.UnitPrice,
		BoxCost:        m.BoxCost,
		BoxesPurchased: m.BoxesPurchased,
		AllFlavors:     m.AllFlavors,
		EnabledFlavors: m.EnabledFlavors,
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

// ==================== Inventory model ====================

type inventoryModel struct {
	ID        string           `bson:"_id"`
	Counts    map[string]int64 `bson:"counts"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

func toInventoryModel(inv *inventory.Inventory) *inventoryModel {
	counts := inv.Counts
	if counts == nil {
		counts = map[string]int64{}
	}
	return &inventoryModel{ID: inventoryDocID, Counts: counts, UpdatedAt: inv.UpdatedAt}
}

func fromInventoryModel(m *inventoryModel) *inventory.Inventory {
	counts := m.Counts
	if counts == nil {
		counts = make(map[string]int64)
	}
	return &inventory.Inventory{Counts: counts, UpdatedAt: m.UpdatedAt.UTC()}
}

// ==================== Sale model ====================

type saleModel struct {
	ID        string    `bson:"_id"`
	Profile   string    `bson:"profile"`
	Flavor    string    `bson:"flavor"`
	Qty       int64     `bson:"qty"`
	UnitPrice int64     `bson:"unit_price"`
	Total     int64     `bson:"total"`
	CreatedAt time.Time `bson:"created_at"`
}

func toSaleModel(s *sale.Sale) *saleModel {
	return &saleModel{
		ID:        s.ID.String(),
		Profile:   s.Profile,
		Flavor:    s.Flavor,
		Qty:       s.Qty,
		UnitPrice: s.UnitPrice,
		Total:     s.Total,
		CreatedAt: s.CreatedAt,
	}
}

func fromSaleModel(m *saleModel) (*sale.Sale, error) {
	saleID, err := id.ParseSaleID(m.ID)
	if err != nil {
		return nil, err
	}
	return &sale.Sale{
		ID:        saleID,
		Profile:   m.Profile,
		Flavor:    m.Flavor,
		Qty:       m.Qty,
		UnitPrice: m.UnitPrice,
		Total:     m.Total,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

// ==================== Tip model ====================

type tipModel struct {
	ID        string    `bson:"_id"`
	Profile   string    `bson:"profile"`
	Amount    int64     `bson:"amount"`
	CreatedAt time.Time `bson:"created_at"`
}

func toTipModel(t *tip.Tip) *tipModel {
	return &tipModel{
		ID:        t.ID.String(),
		Profile:   t.Profile,
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
	}
}

func fromTipModel(m *tipModel) (*tip.Tip, error) {
	tipID, err := id.ParseTipID(m.ID)
	if err != nil {
		return nil, err
	}
	return &tip.Tip{
		ID:        tipID,
		Profile:   m.Profile,
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
