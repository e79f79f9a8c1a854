// Package tip defines the immutable tip record. Tips are not linked to a sale.
package tip

import (
	"cmp"
	"slices"
	"time"

	"github.com/xraph/stockledger/id"
)

// Tip is a gratuity received by one profile.
type Tip struct {
	ID        id.TipID  `json:"id"`
	Profile   string    `json:"profile"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a tip with a fresh ID.
func New(profile string, amount int64, createdAt time.Time) *Tip {
	return &Tip{
		ID:        id.NewTipID(),
		Profile:   profile,
		Amount:    amount,
		CreatedAt: createdAt,
	}
}

// Clone returns a copy.
func (t *Tip) Clone() *Tip {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ListOpts filters tip listings. Zero values mean no bound.
type ListOpts struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Match reports whether t falls inside the time window.
func (o ListOpts) Match(t *Tip) bool {
	if !o.Since.IsZero() && t.CreatedAt.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !t.CreatedAt.Before(o.Until) {
		return false
	}
	return true
}

// SortNewestFirst orders tips by CreatedAt descending, ID descending on ties.
func SortNewestFirst(tips []*Tip) {
	slices.SortStableFunc(tips, func(a, b *Tip) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
}
