// Package stockledger is the transactional core of a flavor-based sales stand.
//
// Stockledger is designed as a library, not a service. It keeps a small
// inventory of flavors, records sales and tips for a closed set of operator
// profiles, and derives live financial reports from what was recorded. It
// provides:
//
//   - Atomic sales that move units from inventory into sale records
//   - Sale deletion that restocks through the same atomic discipline
//   - Optimistic concurrency with bounded, backed-off retries
//   - Live projections pushed to subscribers on every committed change
//   - Pluggable hooks for audit trails and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/stockledger"
//	    "github.com/xraph/stockledger/store/sqlite"
//	)
//
//	s, err := sqlite.Open("stockledger.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := stockledger.New(s, stockledger.WithProfiles("JP", "Pau"))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Recording sales
//
// A sale names a profile, the units requested per flavor and an optional
// tip. Either every sale line and the inventory decrement commit together,
// or nothing does:
//
//	receipt, err := l.RecordSale(ctx, "JP", map[string]int64{"Coco": 2}, 1000)
//	switch {
//	case stockledger.IsInsufficientStock(err):
//	    // not enough units left
//	case stockledger.IsConflict(err):
//	    // too much contention, retry budget exhausted
//	}
//
// # Projections
//
// Finance totals, per-profile summaries, the daily history and stock
// counters are recomputed from scratch on every change:
//
//	views, err := l.Subscribe(ctx)
//	for v := range views {
//	    fmt.Println(v.Finance.SplitEach)
//	}
//
// All money is integer arithmetic in the smallest recorded unit. Pesos are
// recorded whole.
package stockledger
