package sqlite

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newLedger(t *testing.T, s *Store, opts ...stockledger.Option) *stockledger.Ledger {
	t.Helper()
	base := []stockledger.Option{
		stockledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		stockledger.WithProjection(false),
		stockledger.WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
	}
	l := stockledger.New(s, append(base, opts...)...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func counts(t *testing.T, l *stockledger.Ledger) map[string]int64 {
	t.Helper()
	inv, err := l.Inventory(context.Background())
	require.NoError(t, err)
	return inv.Counts
}

// ──────────────────────────────────────────────────
// Store contract
// ──────────────────────────────────────────────────

func TestSingletonsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.GetSettings(ctx)
	assert.ErrorIs(t, err, stockledger.ErrSettingsNotFound)
	_, err = s.GetInventory(ctx)
	assert.ErrorIs(t, err, stockledger.ErrInventoryNotFound)

	st := settings.Defaults()
	st.BoxesPurchased = 3
	require.NoError(t, s.PutSettings(ctx, st))
	assert.False(t, st.UpdatedAt.IsZero())

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.AllFlavors, got.AllFlavors)
	assert.Equal(t, st.EnabledFlavors, got.EnabledFlavors)
	assert.Equal(t, int64(3), got.BoxesPurchased)
	assert.Equal(t, int64(4500), got.UnitPrice)

	inv := inventory.New(settings.DefaultFlavors)
	inv.Counts["Coco"] = 12
	require.NoError(t, s.PutInventory(ctx, inv))
	// A second blind write overwrites the first.
	inv.Counts["Coco"] = 10
	require.NoError(t, s.PutInventory(ctx, inv))

	gotInv, err := s.GetInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv.Counts, gotInv.Counts)
}

func TestStaleVersionIsConflict(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutInventory(ctx, inventory.New(settings.DefaultFlavors)))
	require.NoError(t, s.PutInventory(ctx, inventory.New(settings.DefaultFlavors)))

	err := s.db.Transaction(func(gtx *gorm.DB) error {
		unit := newTx(s, gtx)
		unit.versions[inventoryModel{}.TableName()] = 1
		return unit.PutInventory(ctx, inventory.New(settings.DefaultFlavors))
	})
	assert.ErrorIs(t, err, stockledger.ErrConflict)
}

func TestInsertRaceIsConflict(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutSettings(ctx, settings.Defaults()))

	// The unit believes the row is absent; another writer created it.
	err := s.db.Transaction(func(gtx *gorm.DB) error {
		unit := newTx(s, gtx)
		unit.versions[settingsModel{}.TableName()] = 0
		return unit.PutSettings(ctx, settings.Defaults())
	})
	assert.ErrorIs(t, err, stockledger.ErrConflict)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutInventory(ctx, inventory.New([]string{"Coco"})))

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		inv, err := tx.GetInventory(ctx)
		if err != nil {
			return err
		}
		inv.Counts["Coco"] = 50
		if err := tx.PutInventory(ctx, inv); err != nil {
			return err
		}
		if err := tx.CreateSale(ctx, sale.New("JP", "Coco", 1, 4500, time.Time{})); err != nil {
			return err
		}
		return stockledger.ErrInsufficientStock
	})
	require.ErrorIs(t, err, stockledger.ErrInsufficientStock)

	inv, err := s.GetInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.Counts["Coco"])

	sales, err := s.ListSales(ctx, "JP", sale.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestAtomicReadsOwnWrites(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutInventory(ctx, inventory.New([]string{"Coco"})))

	created := sale.New("JP", "Coco", 2, 4500, time.Time{})
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		inv, err := tx.GetInventory(ctx)
		if err != nil {
			return err
		}
		inv.Counts["Coco"] = 8
		if err := tx.PutInventory(ctx, inv); err != nil {
			return err
		}
		again, err := tx.GetInventory(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(8), again.Counts["Coco"])
		// Writing twice in one unit must not trip the version guard.
		again.Counts["Coco"] = 7
		if err := tx.PutInventory(ctx, again); err != nil {
			return err
		}

		if err := tx.CreateSale(ctx, created); err != nil {
			return err
		}
		got, err := tx.GetSale(ctx, "JP", created.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, created.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	inv, err := s.GetInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inv.Counts["Coco"])
}

func TestDeleteMissingSaleIsConflict(t *testing.T) {
	s := openStore(t)
	err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteSale(ctx, "JP", id.NewSaleID())
	})
	assert.ErrorIs(t, err, stockledger.ErrConflict)
}

func TestGetSaleMissing(t *testing.T) {
	s := openStore(t)
	err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetSale(ctx, "JP", id.NewSaleID())
		return err
	})
	assert.ErrorIs(t, err, stockledger.ErrSaleNotFound)
}

func TestListNewestFirstWithWindow(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openStore(t)
	ctx := context.Background()

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < 4; i++ {
			at := base.Add(time.Duration(i) * time.Hour)
			if err := tx.CreateSale(ctx, sale.New("Pau", "Coco", int64(i+1), 4500, at)); err != nil {
				return err
			}
			if err := tx.CreateTip(ctx, tip.New("Pau", int64(100*(i+1)), at)); err != nil {
				return err
			}
		}
		return tx.CreateSale(ctx, sale.New("JP", "Coco", 1, 4500, base))
	})
	require.NoError(t, err)

	sales, err := s.ListSales(ctx, "Pau", sale.ListOpts{})
	require.NoError(t, err)
	require.Len(t, sales, 4)
	for i, want := range []int64{4, 3, 2, 1} {
		assert.Equal(t, want, sales[i].Qty)
	}
	assert.True(t, sales[0].CreatedAt.Equal(base.Add(3*time.Hour)))

	window, err := s.ListSales(ctx, "Pau", sale.ListOpts{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, int64(3), window[0].Qty)

	limited, err := s.ListTips(ctx, "Pau", tip.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(400), limited[0].Amount)
}

func TestWatchPublishesAfterCommit(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, store.TopicInventory)
	require.NoError(t, err)

	require.NoError(t, s.PutSettings(ctx, settings.Defaults()))
	require.NoError(t, s.PutInventory(ctx, inventory.New(settings.DefaultFlavors)))

	select {
	case c := <-ch:
		assert.Equal(t, store.TopicInventory, c.Topic)
		assert.Equal(t, store.InventoryKey, c.Key)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestClosedStore(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(context.Background()), stockledger.ErrStoreClosed)
	_, err = s.Watch(context.Background())
	assert.ErrorIs(t, err, stockledger.ErrStoreClosed)
	err = s.Atomic(context.Background(), func(context.Context, store.Tx) error { return nil })
	assert.ErrorIs(t, err, stockledger.ErrStoreClosed)
}

// ──────────────────────────────────────────────────
// Engine scenarios on the embedded backend
// ──────────────────────────────────────────────────

func TestRecordSaleDecrements(t *testing.T) {
	l := newLedger(t, openStore(t))
	ctx := context.Background()
	_, err := l.SetStock(ctx, map[string]int64{"Arequipe": 5, "Coco": 2})
	require.NoError(t, err)

	r, err := l.RecordSale(ctx, "JP", map[string]int64{"Arequipe": 3, "Coco": 2}, 1000)
	require.NoError(t, err)
	require.Len(t, r.Sales, 2)
	require.NotNil(t, r.Tip)
	assert.Equal(t, int64(5*4500), r.SoldTotal)

	c := counts(t, l)
	assert.Equal(t, int64(2), c["Arequipe"])
	assert.Equal(t, int64(0), c["Coco"])

	_, err = l.RecordSale(ctx, "JP", map[string]int64{"Arequipe": 3}, 0)
	assert.True(t, stockledger.IsInsufficientStock(err))
	assert.Equal(t, int64(2), counts(t, l)["Arequipe"])

	sales, err := l.ListSales(ctx, "JP", sale.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

func TestDeleteSaleRestocks(t *testing.T) {
	l := newLedger(t, openStore(t))
	ctx := context.Background()
	_, err := l.SetStock(ctx, map[string]int64{"Coco": 7})
	require.NoError(t, err)

	r, err := l.RecordSale(ctx, "Pau", map[string]int64{"Coco": 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts(t, l)["Coco"])

	_, err = l.DeleteSale(ctx, "Pau", r.Sales[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), counts(t, l)["Coco"])

	_, err = l.DeleteSale(ctx, "Pau", r.Sales[0].ID)
	assert.True(t, stockledger.IsNotFound(err))
}

func TestLastUnitRace(t *testing.T) {
	const racers = 6
	l := newLedger(t, openStore(t), stockledger.WithMaxAttempts(racers+1))
	ctx := context.Background()
	_, err := l.SetStock(ctx, map[string]int64{"Coco": 1})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 1}, 0)
			if err == nil {
				successes.Add(1)
				return
			}
			assert.True(t, stockledger.IsInsufficientStock(err) || stockledger.IsConflict(err), "unexpected error: %v", err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int64(0), counts(t, l)["Coco"])
}

func TestProjectionFromSQLite(t *testing.T) {
	l := newLedger(t, openStore(t))
	ctx := context.Background()
	_, err := l.SetStock(ctx, map[string]int64{"Coco": 10, "Chocolate": 10})
	require.NoError(t, err)
	_, err = l.SetBoxesPurchased(ctx, 1)
	require.NoError(t, err)

	_, err = l.RecordSale(ctx, "JP", map[string]int64{"Coco": 2}, 500)
	require.NoError(t, err)
	_, err = l.RecordSale(ctx, "Pau", map[string]int64{"Chocolate": 1}, 0)
	require.NoError(t, err)

	v, err := l.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3*4500), v.Finance.RevenueTotal.Amount)
	assert.Equal(t, int64(500), v.Finance.TipsTotal.Amount)
	assert.Equal(t, int64(3*4500+500-188000), v.Finance.NetToSplit.Amount)
	assert.Equal(t, int64(17), v.Stock.RemainingUnits)
	assert.Equal(t, int64(3), v.Stock.SoldUnits)

	again, err := projection.Load(ctx, l.Store(), l.Profiles())
	require.NoError(t, err)
	assert.Len(t, again.Sales["JP"], 1)
}
