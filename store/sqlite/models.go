package sqlite

import (
	"time"

	"gorm.io/datatypes"

	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/tip"
)

// Singleton row IDs.
const (
	settingsRowID  = "app"
	inventoryRowID = "current"
)

// Timestamps are stored as Unix nanoseconds so ordering is exact.

// ==================== Settings model ====================

type settingsModel struct {
	ID             string                      `gorm:"column:id;primaryKey"`
	UnitPrice      int64                       `gorm:"column:unit_price;not null;default:0"`
	BoxCost        int64                       `gorm:"column:box_cost;not null;default:0"`
	BoxesPurchased int64                       `gorm:"column:boxes_purchased;not null;default:0"`
	AllFlavors     datatypes.JSONSlice[string] `gorm:"column:all_flavors"`
	EnabledFlavors datatypes.JSONSlice[string] `gorm:"column:enabled_flavors"`
	Version        int64                       `gorm:"column:version;not null;default:0"`
	UpdatedAt      int64                       `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (settingsModel) TableName() string { return "ledger_settings" }

func toSettingsModel(s *settings.Settings) *settingsModel {
	return &settingsModel{
		ID:             settingsRowID,
		UnitPrice:      s.UnitPrice,
		BoxCost:        s.BoxCost,
		BoxesPurchased: s.BoxesPurchased,
		AllFlavors:     datatypes.JSONSlice[string](nonNil(s.AllFlavors)),
		EnabledFlavors: datatypes.JSONSlice[string](nonNil(s.EnabledFlavors)),
	}
}

func fromSettingsModel(m *settingsModel) *settings.Settings {
	return &settings.Settings{
		UnitPrice:      m.UnitPrice,
		BoxCost:        m.BoxCost,
		BoxesPurchased: m.BoxesPurchased,
		AllFlavors:     append([]string(nil), m.AllFlavors...),
		EnabledFlavors: append([]string(nil), m.EnabledFlavors...),
		UpdatedAt:      fromNanos(m.UpdatedAt),
	}
}

// ==================== Inventory model ====================

type inventoryModel struct {
	ID        string                               `gorm:"column:id;primaryKey"`
	Counts    datatypes.JSONType[map[string]int64] `gorm:"column:counts"`
	Version   int64                                `gorm:"column:version;not null;default:0"`
	UpdatedAt int64                                `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (inventoryModel) TableName() string { return "ledger_inventory" }

func toInventoryModel(inv *inventory.Inventory) *inventoryModel {
	counts := make(map[string]int64, len(inv.Counts))
	for k, v := range inv.Counts {
		counts[k] = v
	}
	return &inventoryModel{
		ID:     inventoryRowID,
		Counts: datatypes.NewJSONType(counts),
	}
}

func fromInventoryModel(m *inventoryModel) *inventory.Inventory {
	counts := make(map[string]int64, len(m.Counts.Data()))
	for k, v := range m.Counts.Data() {
		counts[k] = v
	}
	return &inventory.Inventory{Counts: counts, UpdatedAt: fromNanos(m.UpdatedAt)}
}

// ==================== Sale model ====================

type saleModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Profile   string `gorm:"column:profile;not null;index:idx_ledger_sales_profile_created,priority:1"`
	Flavor    string `gorm:"column:flavor;not null"`
	Qty       int64  `gorm:"column:qty;not null"`
	UnitPrice int64  `gorm:"column:unit_price;not null"`
	Total     int64  `gorm:"column:total;not null"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime:false;index:idx_ledger_sales_profile_created,priority:2,sort:desc"`
}

func (saleModel) TableName() string { return "ledger_sales" }

func toSaleModel(s *sale.Sale) *saleModel {
	return &saleModel{
		ID:        s.ID.String(),
		Profile:   s.Profile,
		Flavor:    s.Flavor,
		Qty:       s.Qty,
		UnitPrice: s.UnitPrice,
		Total:     s.Total,
		CreatedAt: toNanos(s.CreatedAt),
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
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}

// ==================== Tip model ====================

type tipModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Profile   string `gorm:"column:profile;not null;index:idx_ledger_tips_profile_created,priority:1"`
	Amount    int64  `gorm:"column:amount;not null"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime:false;index:idx_ledger_tips_profile_created,priority:2,sort:desc"`
}

func (tipModel) TableName() string { return "ledger_tips" }

func toTipModel(t *tip.Tip) *tipModel {
	return &tipModel{
		ID:        t.ID.String(),
		Profile:   t.Profile,
		Amount:    t.Amount,
		CreatedAt: toNanos(t.CreatedAt),
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
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}

// ==================== Helpers ====================

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
