package stockledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/store"
)

// ToggleEnabled flips whether flavor is offered for sale and reports the
// new state. The flavor must already be in the catalog.
func (l *Ledger) ToggleEnabled(ctx context.Context, flavor string) (bool, error) {
	var enabled bool
	_, err := l.atomically(ctx, "toggle_flavor", func(ctx context.Context, tx store.Tx) error {
		st, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		if !st.HasFlavor(flavor) {
			return ValidationError{Field: "flavor", Message: fmt.Sprintf("%q is not in the catalog", flavor)}
		}
		enabled = st.Toggle(flavor)
		return tx.PutSettings(ctx, st)
	})
	if err != nil {
		return false, err
	}

	l.plugins.EmitFlavorToggled(ctx, flavor, enabled)
	l.logger.Info("flavor toggled", "flavor", flavor, "enabled", enabled)
	return enabled, nil
}

// AddFlavor appends a new flavor to the catalog, enables it and gives it a
// zero inventory entry. It reports false when the flavor already exists.
//
// Settings and Inventory are updated by two separate read-modify-writes
// unless the Ledger was built WithAtomicCatalog. A failure between them
// leaves the flavor without an inventory entry, which reads as 0 and is
// backfilled by the next engine write or EnsureInventory.
func (l *Ledger) AddFlavor(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ValidationError{Field: "flavor", Message: "name must not be empty"}
	}

	var (
		added bool
		err   error
	)
	if l.atomicCatalog {
		_, err = l.atomically(ctx, "add_flavor", func(ctx context.Context, tx store.Tx) error {
			added = false
			ok, err := addToCatalog(ctx, tx, name)
			if err != nil || !ok {
				return err
			}
			added = true
			return addToInventory(ctx, tx, name)
		})
	} else {
		_, err = l.atomically(ctx, "add_flavor", func(ctx context.Context, tx store.Tx) error {
			var err error
			added, err = addToCatalog(ctx, tx, name)
			return err
		})
		if err == nil && added {
			_, err = l.atomically(ctx, "add_flavor_stock", func(ctx context.Context, tx store.Tx) error {
				return addToInventory(ctx, tx, name)
			})
		}
	}
	if err != nil {
		return added, err
	}
	if !added {
		return false, nil
	}

	l.plugins.EmitFlavorAdded(ctx, name)
	l.logger.Info("flavor added", "flavor", name, "atomic", l.atomicCatalog)
	return true, nil
}

func addToCatalog(ctx context.Context, tx store.Tx, name string) (bool, error) {
	st, err := tx.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	if !st.AddFlavor(name) {
		return false, nil
	}
	return true, tx.PutSettings(ctx, st)
}

func addToInventory(ctx context.Context, tx store.Tx, name string) error {
	inv, err := tx.GetInventory(ctx)
	if errors.Is(err, ErrInventoryNotFound) {
		inv = inventory.New(nil)
	} else if err != nil {
		return err
	}
	if !inv.Backfill([]string{name}) {
		return nil
	}
	return tx.PutInventory(ctx, inv)
}
