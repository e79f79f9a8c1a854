package stockledger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
)

// Receipt describes a committed sale.
type Receipt struct {
	Sales           []*sale.Sale     `json:"sales"` // One per flavor, flavor order
	Tip             *tip.Tip         `json:"tip,omitempty"`
	UnitPrice       int64            `json:"unit_price"`
	SoldQty         int64            `json:"sold_qty"`
	SoldTotal       int64            `json:"sold_total"`
	PerFlavorTotals map[string]int64 `json:"per_flavor_totals"`
	Attempts        int              `json:"attempts"`
}

// RecordSale moves the requested units from inventory into new sale records
// for profile, plus a tip when tipAmount is positive. Either everything is
// written or nothing is.
//
// Zero quantities are ignored. Validation failures return a ValidationError;
// a flavor without enough stock returns an *InsufficientStockError naming the
// first such flavor in sorted order.
func (l *Ledger) RecordSale(ctx context.Context, profile string, requested map[string]int64, tipAmount int64) (*Receipt, error) {
	if err := l.checkProfile(profile); err != nil {
		return nil, err
	}
	flavors, err := validateRequest(requested, tipAmount)
	if err != nil {
		return nil, err
	}

	var receipt *Receipt
	attempts, err := l.atomically(ctx, "record_sale", func(ctx context.Context, tx store.Tx) error {
		receipt = nil

		st, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		inv, err := tx.GetInventory(ctx)
		if errors.Is(err, ErrInventoryNotFound) {
			inv = inventory.New(nil)
		} else if err != nil {
			return err
		}

		for _, f := range flavors {
			if !st.IsEnabled(f) {
				return ValidationError{Field: "flavor", Message: fmt.Sprintf("%q is not enabled for sale", f)}
			}
		}
		if !fitsTotal(requested, flavors, st.UnitPrice) {
			return ValidationError{Field: "qty", Message: "sale total exceeds the largest recordable amount"}
		}
		for _, f := range flavors {
			if available := inv.Get(f); requested[f] > available {
				return &InsufficientStockError{Flavor: f, Requested: requested[f], Available: available}
			}
		}

		for _, f := range flavors {
			inv.Counts[f] = inv.Get(f) - requested[f]
		}
		inv.Backfill(st.AllFlavors)
		if err := tx.PutInventory(ctx, inv); err != nil {
			return err
		}

		r := &Receipt{
			UnitPrice:       st.UnitPrice,
			PerFlavorTotals: make(map[string]int64, len(flavors)),
		}
		for _, f := range flavors {
			s := sale.New(profile, f, requested[f], st.UnitPrice, time.Time{})
			if err := tx.CreateSale(ctx, s); err != nil {
				return err
			}
			r.Sales = append(r.Sales, s)
			r.SoldQty += s.Qty
			r.SoldTotal += s.Total
			r.PerFlavorTotals[f] = s.Total
		}

		if tipAmount > 0 {
			t := tip.New(profile, tipAmount, time.Time{})
			if err := tx.CreateTip(ctx, t); err != nil {
				return err
			}
			r.Tip = t
		}

		receipt = r
		return nil
	})
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			l.plugins.EmitStockInsufficient(ctx, profile, stockErr.Flavor, stockErr.Requested, stockErr.Available)
			l.logger.Info("sale rejected",
				"profile", profile,
				"flavor", stockErr.Flavor,
				"requested", stockErr.Requested,
				"available", stockErr.Available,
			)
		}
		return nil, err
	}

	receipt.Attempts = attempts
	l.plugins.EmitSaleRecorded(ctx, profile, receipt.Sales, receipt.Tip)

	l.logger.Info("sale recorded",
		"profile", profile,
		"qty", receipt.SoldQty,
		"total", receipt.SoldTotal,
		"tip", tipAmount,
		"attempts", attempts,
	)

	return receipt, nil
}

// DeleteSale removes a sale and returns its units to inventory in one
// atomic unit. It returns the deleted sale.
func (l *Ledger) DeleteSale(ctx context.Context, profile string, saleID id.SaleID) (*sale.Sale, error) {
	if err := l.checkProfile(profile); err != nil {
		return nil, err
	}
	if saleID.IsNil() {
		return nil, ValidationError{Field: "sale_id", Message: "must not be empty"}
	}

	var deleted *sale.Sale
	attempts, err := l.atomically(ctx, "delete_sale", func(ctx context.Context, tx store.Tx) error {
		deleted = nil

		s, err := tx.GetSale(ctx, profile, saleID)
		if err != nil {
			return err
		}
		inv, err := tx.GetInventory(ctx)
		if errors.Is(err, ErrInventoryNotFound) {
			inv = inventory.New(nil)
		} else if err != nil {
			return err
		}

		if s.Flavor != "" && s.Qty > 0 {
			inv.Counts[s.Flavor] = inv.Get(s.Flavor) + s.Qty
		}
		st, err := tx.GetSettings(ctx)
		switch {
		case err == nil:
			inv.Backfill(st.AllFlavors)
		case !errors.Is(err, ErrSettingsNotFound):
			return err
		}

		if err := tx.PutInventory(ctx, inv); err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, profile, saleID); err != nil {
			return err
		}

		deleted = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitSaleDeleted(ctx, deleted)

	l.logger.Info("sale deleted",
		"profile", profile,
		"sale_id", saleID.String(),
		"flavor", deleted.Flavor,
		"qty", deleted.Qty,
		"attempts", attempts,
	)

	return deleted, nil
}

// validateRequest checks the request shape and returns the flavors with a
// positive quantity, sorted.
func validateRequest(requested map[string]int64, tipAmount int64) ([]string, error) {
	if tipAmount < 0 {
		return nil, ValidationError{Field: "tip", Message: "must not be negative"}
	}

	var sum int64
	for _, f := range slices.Sorted(maps.Keys(requested)) {
		q := requested[f]
		if q < 0 {
			return nil, ValidationError{Field: "qty", Message: fmt.Sprintf("quantity for %q must not be negative", f)}
		}
		if q > math.MaxInt64-sum {
			return nil, ValidationError{Field: "qty", Message: "total quantity is too large"}
		}
		sum += q
	}
	if sum <= 0 {
		return nil, ValidationError{Field: "qty", Message: "at least one unit must be requested"}
	}

	flavors := make([]string, 0, len(requested))
	for _, f := range slices.Sorted(maps.Keys(requested)) {
		if requested[f] > 0 {
			flavors = append(flavors, f)
		}
	}
	return flavors, nil
}

// fitsTotal reports whether every line total and their sum fit in an int64.
func fitsTotal(requested map[string]int64, flavors []string, unitPrice int64) bool {
	if unitPrice <= 0 {
		return true
	}
	var total int64
	for _, f := range flavors {
		q := requested[f]
		if q > math.MaxInt64/unitPrice {
			return false
		}
		line := q * unitPrice
		if line > math.MaxInt64-total {
			return false
		}
		total += line
	}
	return true
}
