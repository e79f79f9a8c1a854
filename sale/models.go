// Package sale defines the immutable sale record written by the engine.
package sale

import (
	"cmp"
	"slices"
	"time"

	"github.com/xraph/stockledger/id"
)

// Sale records units of one flavor sold by one profile.
type Sale struct {
	ID        id.SaleID `json:"id"`
	Profile   string    `json:"profile"`
	Flavor    string    `json:"flavor"`
	Qty       int64     `json:"qty"`
	UnitPrice int64     `json:"unit_price"` // Snapshot of Settings.UnitPrice at sale time
	Total     int64     `json:"total"`      // Qty * UnitPrice
	CreatedAt time.Time `json:"created_at"`
}

// New builds a sale with a fresh ID and a total derived from the snapshot price.
func New(profile, flavor string, qty, unitPrice int64, createdAt time.Time) *Sale {
	return &Sale{
		ID:        id.NewSaleID(),
		Profile:   profile,
		Flavor:    flavor,
		Qty:       qty,
		UnitPrice: unitPrice,
		Total:     qty * unitPrice,
		CreatedAt: createdAt,
	}
}

// Clone returns a copy.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// ListOpts filters sale listings. Zero values mean no bound.
type ListOpts struct {
	Since time.Time // Inclusive lower bound on CreatedAt
	Until time.Time // Exclusive upper bound on CreatedAt
	Limit int
}

// Match reports whether s falls inside the time window.
func (o ListOpts) Match(s *Sale) bool {
	if !o.Since.IsZero() && s.CreatedAt.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !s.CreatedAt.Before(o.Until) {
		return false
	}
	return true
}

// SortNewestFirst orders sales by CreatedAt descending, ID descending on ties.
func SortNewestFirst(sales []*Sale) {
	slices.SortStableFunc(sales, func(a, b *Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
}
