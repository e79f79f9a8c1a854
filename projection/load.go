package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/tip"
)

// Reader is the read surface a snapshot is loaded from.
type Reader interface {
	settings.Reader
	inventory.Reader
	sale.Lister
	tip.Lister
}

// Load reads every document a View depends on. Each read is independent, so
// the snapshot is only as consistent as the store's single-document reads.
func Load(ctx context.Context, r Reader, profiles []string) (*Snapshot, error) {
	st, err := r.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("projection: load settings: %w", err)
	}
	inv, err := r.GetInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("projection: load inventory: %w", err)
	}

	snap := &Snapshot{
		Settings:  st,
		Inventory: inv,
		Profiles:  profiles,
		Sales:     make(map[string][]*sale.Sale, len(profiles)),
		Tips:      make(map[string][]*tip.Tip, len(profiles)),
		LoadedAt:  time.Now().UTC(),
	}

	for _, p := range profiles {
		sales, err := r.ListSales(ctx, p, sale.ListOpts{})
		if err != nil {
			return nil, fmt.Errorf("projection: list sales for %s: %w", p, err)
		}
		tips, err := r.ListTips(ctx, p, tip.ListOpts{})
		if err != nil {
			return nil, fmt.Errorf("projection: list tips for %s: %w", p, err)
		}
		snap.Sales[p] = sales
		snap.Tips[p] = tips
	}
	return snap, nil
}
