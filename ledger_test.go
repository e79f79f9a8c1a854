package stockledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/store/memory"
	"github.com/xraph/stockledger/tip"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedger(t *testing.T, s store.Store, opts ...stockledger.Option) *stockledger.Ledger {
	t.Helper()
	base := []stockledger.Option{
		stockledger.WithLogger(quietLogger()),
		stockledger.WithProjection(false),
		stockledger.WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
	}
	l := stockledger.New(s, append(base, opts...)...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func stock(t *testing.T, l *stockledger.Ledger, counts map[string]int64) {
	t.Helper()
	_, err := l.SetStock(context.Background(), counts)
	require.NoError(t, err)
}

func counts(t *testing.T, l *stockledger.Ledger) map[string]int64 {
	t.Helper()
	inv, err := l.Inventory(context.Background())
	require.NoError(t, err)
	return inv.Counts
}

func allSales(t *testing.T, l *stockledger.Ledger) []*sale.Sale {
	t.Helper()
	var out []*sale.Sale
	for _, p := range l.Profiles() {
		sales, err := l.ListSales(context.Background(), p, sale.ListOpts{})
		require.NoError(t, err)
		out = append(out, sales...)
	}
	return out
}

// ──────────────────────────────────────────────────
// Initialization
// ──────────────────────────────────────────────────

func TestStartWritesDefaults(t *testing.T) {
	l := newLedger(t, memory.New())
	ctx := context.Background()

	st, err := l.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), st.UnitPrice)
	assert.Equal(t, int64(188000), st.BoxCost)
	assert.Equal(t, int64(0), st.BoxesPurchased)
	assert.Equal(t, []string{"Arequipe", "Chocolate", "Frutos rojos", "Coco"}, st.AllFlavors)
	assert.Equal(t, st.AllFlavors, st.EnabledFlavors)

	assert.Equal(t, map[string]int64{"Arequipe": 0, "Chocolate": 0, "Frutos rojos": 0, "Coco": 0}, counts(t, l))
}

func TestEnsureDefaultsKeepsExistingDocuments(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	custom := settings.Defaults()
	custom.UnitPrice = 5000
	custom.AllFlavors = append(custom.AllFlavors, "Mango")
	require.NoError(t, s.PutSettings(ctx, custom))

	l := newLedger(t, s)

	st, err := l.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), st.UnitPrice)
	assert.Contains(t, counts(t, l), "Mango")
}

func TestEnsureInventoryBackfills(t *testing.T) {
	s := memory.New()
	l := newLedger(t, s)
	ctx := context.Background()

	st, _ := s.GetSettings(ctx)
	st.AllFlavors = append(st.AllFlavors, "Lulo")
	require.NoError(t, s.PutSettings(ctx, st))
	assert.NotContains(t, counts(t, l), "Lulo")

	require.NoError(t, l.EnsureInventory(ctx))
	assert.Equal(t, int64(0), counts(t, l)["Lulo"])
}

// ──────────────────────────────────────────────────
// RecordSale
// ──────────────────────────────────────────────────

func TestRecordSaleScenario(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Arequipe": 5})

	r, err := l.RecordSale(context.Background(), "JP", map[string]int64{"Arequipe": 3}, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(2), counts(t, l)["Arequipe"])
	require.Len(t, r.Sales, 1)
	assert.Equal(t, "Arequipe", r.Sales[0].Flavor)
	assert.Equal(t, int64(3), r.Sales[0].Qty)
	assert.Equal(t, int64(13500), r.Sales[0].Total)
	assert.Equal(t, int64(4500), r.UnitPrice)
	assert.Nil(t, r.Tip)
	assert.Equal(t, 1, r.Attempts)

	sales := allSales(t, l)
	require.Len(t, sales, 1)
	assert.Equal(t, r.Sales[0].ID, sales[0].ID)
	assert.Equal(t, "JP", sales[0].Profile)
}

func TestRecordSaleInsufficientScenario(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Arequipe": 2})

	_, err := l.RecordSale(context.Background(), "JP", map[string]int64{"Arequipe": 3}, 0)
	require.Error(t, err)
	assert.True(t, stockledger.IsInsufficientStock(err))

	var stockErr *stockledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Arequipe", stockErr.Flavor)
	assert.Equal(t, int64(3), stockErr.Requested)
	assert.Equal(t, int64(2), stockErr.Available)

	assert.Equal(t, int64(2), counts(t, l)["Arequipe"])
	assert.Empty(t, allSales(t, l))
}

func TestRecordSaleDecrementsEveryFlavor(t *testing.T) {
	tests := []struct {
		name      string
		inventory map[string]int64
		request   map[string]int64
	}{
		{"single", map[string]int64{"Coco": 4}, map[string]int64{"Coco": 4}},
		{"multi", map[string]int64{"Coco": 4, "Chocolate": 2, "Arequipe": 9}, map[string]int64{"Coco": 1, "Arequipe": 9}},
		{"zero entries ignored", map[string]int64{"Coco": 1, "Chocolate": 0}, map[string]int64{"Coco": 1, "Chocolate": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t, memory.New())
			stock(t, l, tt.inventory)
			before := counts(t, l)

			r, err := l.RecordSale(context.Background(), "Pau", tt.request, 0)
			require.NoError(t, err)

			after := counts(t, l)
			nonzero := 0
			for f, n := range before {
				assert.Equal(t, n-tt.request[f], after[f], f)
				if tt.request[f] > 0 {
					nonzero++
				}
			}

			require.Len(t, r.Sales, nonzero)
			for _, s := range r.Sales {
				assert.Equal(t, tt.request[s.Flavor], s.Qty)
				assert.Equal(t, s.Qty*r.UnitPrice, s.Total)
				assert.Equal(t, s.Total, r.PerFlavorTotals[s.Flavor])
			}
			assert.Len(t, allSales(t, l), nonzero)
		})
	}
}

func TestRecordSaleUsesSnapshotPrice(t *testing.T) {
	s := memory.New()
	l := newLedger(t, s)
	ctx := context.Background()
	stock(t, l, map[string]int64{"Coco": 10})

	st, _ := s.GetSettings(ctx)
	st.UnitPrice = 5000
	require.NoError(t, s.PutSettings(ctx, st))

	r, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), r.SoldTotal)
	assert.Equal(t, int64(2), r.SoldQty)
}

func TestRecordSaleWithTip(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 1})
	ctx := context.Background()

	r, err := l.RecordSale(ctx, "Pau", map[string]int64{"Coco": 1}, 2000)
	require.NoError(t, err)
	require.NotNil(t, r.Tip)
	assert.Equal(t, int64(2000), r.Tip.Amount)
	assert.Equal(t, "Pau", r.Tip.Profile)

	tips, err := l.ListTips(ctx, "Pau", tip.ListOpts{})
	require.NoError(t, err)
	require.Len(t, tips, 1)
	assert.Equal(t, r.Tip.ID, tips[0].ID)

	jpTips, err := l.ListTips(ctx, "JP", tip.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, jpTips)
}

func TestRecordSaleValidation(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 5, "Chocolate": 5})
	ctx := context.Background()
	_, err := l.ToggleEnabled(ctx, "Chocolate")
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile string
		request map[string]int64
		tip     int64
		field   string
	}{
		{"unknown profile", "Ana", map[string]int64{"Coco": 1}, 0, "profile"},
		{"negative qty", "JP", map[string]int64{"Coco": -1, "Arequipe": 2}, 0, "qty"},
		{"empty request", "JP", map[string]int64{}, 0, "qty"},
		{"all zero", "JP", map[string]int64{"Coco": 0}, 0, "qty"},
		{"negative tip", "JP", map[string]int64{"Coco": 1}, -5, "tip"},
		{"quantity sum overflows", "JP", map[string]int64{"Coco": math.MaxInt64, "Arequipe": 1}, 0, "qty"},
		{"disabled flavor", "JP", map[string]int64{"Chocolate": 1}, 0, "flavor"},
		{"unknown flavor", "JP", map[string]int64{"Mango": 1}, 0, "flavor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordSale(ctx, tt.profile, tt.request, tt.tip)
			require.Error(t, err)
			assert.True(t, stockledger.IsValidation(err))

			var ve stockledger.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.Equal(t, int64(5), counts(t, l)["Coco"])
	assert.Empty(t, allSales(t, l))
}

func TestRecordSaleRejectsTotalOverflow(t *testing.T) {
	l := newLedger(t, memory.New())
	huge := math.MaxInt64/settings.DefaultUnitPrice + 1
	stock(t, l, map[string]int64{"Arequipe": huge, "Coco": 1})
	ctx := context.Background()

	_, err := l.RecordSale(ctx, "JP", map[string]int64{"Arequipe": huge}, 0)
	var ve stockledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "qty", ve.Field)

	// Each line fits but their sum does not.
	half := math.MaxInt64/settings.DefaultUnitPrice/2 + 1
	stock(t, l, map[string]int64{"Arequipe": half, "Coco": half})
	_, err = l.RecordSale(ctx, "JP", map[string]int64{"Arequipe": half, "Coco": half}, 0)
	require.ErrorAs(t, err, &ve)

	assert.Equal(t, half, counts(t, l)["Arequipe"])
	assert.Empty(t, allSales(t, l))

	view, err := l.Project(ctx)
	require.NoError(t, err)
	assert.Zero(t, view.Finance.RevenueTotal.Amount)
}

func TestUnknownProfileMatchesSentinel(t *testing.T) {
	l := newLedger(t, memory.New())
	_, err := l.RecordSale(context.Background(), "Ana", map[string]int64{"Coco": 1}, 0)
	assert.ErrorIs(t, err, stockledger.ErrUnknownProfile)
	assert.ErrorIs(t, err, stockledger.ErrInvalidInput)
}

func TestRecordSaleReportsFirstShortFlavorInSortedOrder(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 0, "Chocolate": 0, "Arequipe": 1})

	_, err := l.RecordSale(context.Background(), "JP", map[string]int64{"Coco": 1, "Chocolate": 1, "Arequipe": 1}, 0)
	var stockErr *stockledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Chocolate", stockErr.Flavor)
	assert.Equal(t, int64(1), counts(t, l)["Arequipe"])
}

func TestRecordSaleCustomProfiles(t *testing.T) {
	l := newLedger(t, memory.New(), stockledger.WithProfiles("Ana", "", "Ana", "Luis"))
	stock(t, l, map[string]int64{"Coco": 1})

	assert.Equal(t, []string{"Ana", "Luis"}, l.Profiles())
	_, err := l.RecordSale(context.Background(), "Luis", map[string]int64{"Coco": 1}, 0)
	require.NoError(t, err)
	_, err = l.RecordSale(context.Background(), "JP", map[string]int64{"Coco": 1}, 0)
	assert.True(t, stockledger.IsValidation(err))
}

func TestRecordSaleLastUnitRace(t *testing.T) {
	const racers = 8
	l := newLedger(t, memory.New(), stockledger.WithMaxAttempts(racers+1))
	stock(t, l, map[string]int64{"Coco": 1})

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
		errs      = make(chan error, racers)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			profile := l.Profiles()[i%2]
			if _, err := l.RecordSale(context.Background(), profile, map[string]int64{"Coco": 1}, 0); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), successes.Load())
	for err := range errs {
		assert.True(t, stockledger.IsInsufficientStock(err) || stockledger.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, int64(0), counts(t, l)["Coco"])
	assert.Len(t, allSales(t, l), 1)
}

// ──────────────────────────────────────────────────
// Retry discipline
// ──────────────────────────────────────────────────

// flakyStore fails the first n atomic units with a conflict.
type flakyStore struct {
	store.Store
	remaining atomic.Int32
	calls     atomic.Int32
}

func (f *flakyStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	f.calls.Add(1)
	if f.remaining.Add(-1) >= 0 {
		return errors.Join(errors.New("injected"), stockledger.ErrConflict)
	}
	return f.Store.Atomic(ctx, fn)
}

func TestRecordSaleRetriesConflicts(t *testing.T) {
	fs := &flakyStore{Store: memory.New()}
	l := newLedger(t, fs, stockledger.WithMaxAttempts(5))
	stock(t, l, map[string]int64{"Coco": 3})

	fs.remaining.Store(3)
	fs.calls.Store(0)
	r, err := l.RecordSale(context.Background(), "JP", map[string]int64{"Coco": 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Attempts)
	assert.Equal(t, int32(4), fs.calls.Load())
	assert.Equal(t, int64(2), counts(t, l)["Coco"])
}

func TestRecordSaleRetryBudgetExhausted(t *testing.T) {
	fs := &flakyStore{Store: memory.New()}
	l := newLedger(t, fs, stockledger.WithMaxAttempts(3))
	stock(t, l, map[string]int64{"Coco": 3})

	fs.remaining.Store(100)
	fs.calls.Store(0)
	_, err := l.RecordSale(context.Background(), "JP", map[string]int64{"Coco": 1}, 0)
	require.Error(t, err)
	assert.True(t, stockledger.IsConflict(err))
	assert.True(t, stockledger.IsRetryable(err))
	assert.Equal(t, int32(3), fs.calls.Load())

	assert.Equal(t, int64(3), counts(t, l)["Coco"])
	assert.Empty(t, allSales(t, l))
}

func TestRecordSaleHonorsCanceledContext(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 1}, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), counts(t, l)["Coco"])
}

// ──────────────────────────────────────────────────
// DeleteSale
// ──────────────────────────────────────────────────

func TestDeleteSaleRestocks(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 5, "Arequipe": 5})
	ctx := context.Background()

	r, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 2, "Arequipe": 1}, 0)
	require.NoError(t, err)
	before := counts(t, l)

	var coco *sale.Sale
	for _, s := range r.Sales {
		if s.Flavor == "Coco" {
			coco = s
		}
	}
	require.NotNil(t, coco)

	deleted, err := l.DeleteSale(ctx, "JP", coco.ID)
	require.NoError(t, err)
	assert.Equal(t, coco.ID, deleted.ID)

	after := counts(t, l)
	assert.Equal(t, before["Coco"]+2, after["Coco"])
	assert.Equal(t, before["Arequipe"], after["Arequipe"])

	for _, s := range allSales(t, l) {
		assert.NotEqual(t, coco.ID, s.ID)
	}
	assert.Len(t, allSales(t, l), 1)
}

func TestRecordThenDeleteRestoresInventory(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 7, "Chocolate": 3})
	ctx := context.Background()
	before := counts(t, l)

	r, err := l.RecordSale(ctx, "Pau", map[string]int64{"Coco": 4, "Chocolate": 3}, 500)
	require.NoError(t, err)
	for _, s := range r.Sales {
		_, err := l.DeleteSale(ctx, "Pau", s.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, before, counts(t, l))
	assert.Empty(t, allSales(t, l))
}

func TestDeleteSaleNotFound(t *testing.T) {
	l := newLedger(t, memory.New())
	ctx := context.Background()

	_, err := l.DeleteSale(ctx, "JP", id.NewSaleID())
	assert.ErrorIs(t, err, stockledger.ErrSaleNotFound)
	assert.True(t, stockledger.IsNotFound(err))

	_, err = l.DeleteSale(ctx, "JP", id.Nil)
	assert.True(t, stockledger.IsValidation(err))
}

func TestDeleteSaleWrongProfile(t *testing.T) {
	l := newLedger(t, memory.New())
	stock(t, l, map[string]int64{"Coco": 1})
	ctx := context.Background()

	r, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 1}, 0)
	require.NoError(t, err)

	_, err = l.DeleteSale(ctx, "Pau", r.Sales[0].ID)
	assert.ErrorIs(t, err, stockledger.ErrSaleNotFound)
	assert.Equal(t, int64(0), counts(t, l)["Coco"])
}

// ──────────────────────────────────────────────────
// Catalog, stock and finance editing
// ──────────────────────────────────────────────────

func TestToggleEnabled(t *testing.T) {
	l := newLedger(t, memory.New())
	ctx := context.Background()

	enabled, err := l.ToggleEnabled(ctx, "Coco")
	require.NoError(t, err)
	assert.False(t, enabled)
	st, _ := l.Settings(ctx)
	assert.NotContains(t, st.EnabledFlavors, "Coco")
	assert.Contains(t, st.AllFlavors, "Coco")

	enabled, err = l.ToggleEnabled(ctx, "Coco")
	require.NoError(t, err)
	assert.True(t, enabled)
	st, _ = l.Settings(ctx)
	assert.Contains(t, st.EnabledFlavors, "Coco")

	_, err = l.ToggleEnabled(ctx, "Mango")
	assert.True(t, stockledger.IsValidation(err))
}

func TestAddFlavor(t *testing.T) {
	for _, atomicCatalog := range []bool{false, true} {
		name := "separate writes"
		var opts []stockledger.Option
		if atomicCatalog {
			name = "atomic"
			opts = append(opts, stockledger.WithAtomicCatalog())
		}

		t.Run(name, func(t *testing.T) {
			l := newLedger(t, memory.New(), opts...)
			ctx := context.Background()

			added, err := l.AddFlavor(ctx, "  Maracuyá ")
			require.NoError(t, err)
			assert.True(t, added)

			st, _ := l.Settings(ctx)
			assert.Equal(t, "Maracuyá", st.AllFlavors[len(st.AllFlavors)-1])
			assert.True(t, st.IsEnabled("Maracuyá"))
			c := counts(t, l)
			assert.Contains(t, c, "Maracuyá")
			assert.Equal(t, int64(0), c["Maracuyá"])

			added, err = l.AddFlavor(ctx, "Maracuyá")
			require.NoError(t, err)
			assert.False(t, added)
			st, _ = l.Settings(ctx)
			assert.Len(t, st.AllFlavors, 5)

			_, err = l.AddFlavor(ctx, "   ")
			assert.True(t, stockledger.IsValidation(err))
		})
	}
}

func TestSetStock(t *testing.T) {
	l := newLedger(t, memory.New())
	ctx := context.Background()
	stock(t, l, map[string]int64{"Coco": 4, "Chocolate": 2})

	inv, err := l.SetStock(ctx, map[string]int64{"Coco": -3, "Arequipe": 6, "Mango": 9})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"Arequipe": 6, "Chocolate": 2, "Frutos rojos": 0, "Coco": 0}, inv.Counts)
	assert.Equal(t, inv.Counts, counts(t, l))
}

func TestFinanceEditing(t *testing.T) {
	l := newLedger(t, memory.New())
	ctx := context.Background()

	st, err := l.SetBoxesPurchased(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.BoxesPurchased)

	st, err = l.SetBoxesPurchased(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.BoxesPurchased)

	st, err = l.SetBoxCost(ctx, -50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.BoxCost)

	_, err = l.SetBoxCost(ctx, 200000)
	require.NoError(t, err)
	stored, _ := l.Settings(ctx)
	assert.Equal(t, int64(200000), stored.BoxCost)
	assert.Equal(t, int64(0), stored.BoxesPurchased)
}

// ──────────────────────────────────────────────────
// Projections
// ──────────────────────────────────────────────────

func TestProjectOnDemand(t *testing.T) {
	l := newLedger(t, memory.New())
	ctx := context.Background()
	stock(t, l, map[string]int64{"Coco": 10, "Arequipe": 10})
	_, err := l.SetBoxesPurchased(ctx, 1)
	require.NoError(t, err)

	_, err = l.RecordSale(ctx, "JP", map[string]int64{"Coco": 2}, 1000)
	require.NoError(t, err)
	_, err = l.RecordSale(ctx, "Pau", map[string]int64{"Arequipe": 3}, 0)
	require.NoError(t, err)

	v, err := l.Project(ctx)
	require.NoError(t, err)

	assert.Equal(t, stockledger.COP(22500), v.Finance.RevenueTotal)
	assert.Equal(t, stockledger.COP(1000), v.Finance.TipsTotal)
	assert.Equal(t, stockledger.COP(-164500), v.Finance.NetToSplit)
	assert.Equal(t, stockledger.COP(-82250), v.Finance.SplitEach)
	assert.Equal(t, int64(15), v.Stock.RemainingUnits)
	assert.Equal(t, int64(5), v.Stock.SoldUnits)
	assert.Equal(t, int64(20), v.Stock.TotalUnits)
	require.Len(t, v.History, 1)
	assert.Equal(t, int64(5), v.History[0].Qty)

	again, err := l.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, v.Finance, again.Finance)
	assert.Equal(t, v.Stock, again.Stock)
}

func TestSubscribeRequiresLiveWorker(t *testing.T) {
	l := newLedger(t, memory.New())
	_, err := l.Subscribe(context.Background())
	assert.ErrorIs(t, err, stockledger.ErrNotStarted)
}

func nextView(t *testing.T, ch <-chan *projection.View, want func(*projection.View) bool) *projection.View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "subscription closed")
			if want(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
			return nil
		}
	}
}

func TestLiveProjectionFollowsCommits(t *testing.T) {
	l := newLedger(t, memory.New(), stockledger.WithProjection(true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views, err := l.Subscribe(ctx)
	require.NoError(t, err)
	nextView(t, views, func(*projection.View) bool { return true })

	stock(t, l, map[string]int64{"Coco": 5})
	nextView(t, views, func(v *projection.View) bool { return v.Stock.RemainingUnits == 5 })

	_, err = l.RecordSale(ctx, "JP", map[string]int64{"Coco": 2}, 0)
	require.NoError(t, err)
	v := nextView(t, views, func(v *projection.View) bool { return v.Stock.SoldUnits == 2 })
	assert.Equal(t, int64(3), v.Stock.RemainingUnits)
	assert.Equal(t, stockledger.COP(9000), v.Finance.RevenueTotal)

	require.NotNil(t, l.Latest())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-views:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveProjectionClosesOnStop(t *testing.T) {
	l := stockledger.New(memory.New(), stockledger.WithLogger(quietLogger()))
	require.NoError(t, l.Start(context.Background()))

	views, err := l.Subscribe(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Stop())

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-views:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

// ──────────────────────────────────────────────────
// Plugin dispatch
// ──────────────────────────────────────────────────

type hookRecorder struct {
	mu        sync.Mutex
	recorded  []string
	rejected  []string
	conflicts int
	deleted   int
	toggled   map[string]bool
}

func (h *hookRecorder) Name() string { return "hook-recorder" }

func (h *hookRecorder) OnSaleRecorded(_ context.Context, profile string, sales []*sale.Sale, _ *tip.Tip) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range sales {
		h.recorded = append(h.recorded, profile+":"+s.Flavor)
	}
	return nil
}

func (h *hookRecorder) OnStockInsufficient(_ context.Context, _, flavor string, _, _ int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, flavor)
	return nil
}

func (h *hookRecorder) OnTransactionConflict(context.Context, string, int, error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conflicts++
	return nil
}

func (h *hookRecorder) OnSaleDeleted(context.Context, *sale.Sale) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted++
	return nil
}

func (h *hookRecorder) OnFlavorToggled(_ context.Context, flavor string, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.toggled == nil {
		h.toggled = map[string]bool{}
	}
	h.toggled[flavor] = enabled
	return nil
}

func TestPluginHooksFire(t *testing.T) {
	rec := &hookRecorder{}
	fs := &flakyStore{Store: memory.New()}
	l := newLedger(t, fs, stockledger.WithPlugin(rec))
	ctx := context.Background()
	stock(t, l, map[string]int64{"Coco": 1})

	fs.remaining.Store(1)
	r, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 1}, 0)
	require.NoError(t, err)
	_, err = l.RecordSale(ctx, "Pau", map[string]int64{"Coco": 1}, 0)
	require.Error(t, err)
	_, err = l.DeleteSale(ctx, "JP", r.Sales[0].ID)
	require.NoError(t, err)
	_, err = l.ToggleEnabled(ctx, "Coco")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"JP:Coco"}, rec.recorded)
	assert.Equal(t, []string{"Coco"}, rec.rejected)
	assert.Equal(t, 1, rec.conflicts)
	assert.Equal(t, 1, rec.deleted)
	assert.Equal(t, map[string]bool{"Coco": false}, rec.toggled)
}
