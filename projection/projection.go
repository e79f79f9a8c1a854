// Package projection derives the read-side reports of the stand from a
// snapshot of the store: finance totals and the equal split between
// partners, per-profile flavor summaries, the day-by-day sales history and
// the stock counters.
//
// Compute is pure. The same snapshot always yields the same View, so a view
// can be recomputed from scratch on every change notification.
package projection

import (
	"slices"
	"time"

	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/tip"
	"github.com/xraph/stockledger/types"
)

// DayLayout is the layout of History day keys.
const DayLayout = "2006-01-02"

// Partners is the number of shares the net is split into.
const Partners = 2

// Snapshot is a cold read of every document a View depends on.
type Snapshot struct {
	Settings  *settings.Settings
	Inventory *inventory.Inventory
	Profiles  []string               // Configured profiles, in display order
	Sales     map[string][]*sale.Sale // Per profile, newest first
	Tips      map[string][]*tip.Tip  // Per profile, newest first
	LoadedAt  time.Time
}

// Options tunes how values are presented.
type Options struct {
	Currency string         // Defaults to types.DefaultCurrency
	Location *time.Location // Day boundaries for History; defaults to time.Local
}

func (o Options) withDefaults() Options {
	if o.Currency == "" {
		o.Currency = types.DefaultCurrency
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// View is the full derived state shown to operators.
type View struct {
	Finance  Finance          `json:"finance"`
	Profiles []ProfileSummary `json:"profiles"`
	History  []Day            `json:"history"`
	Stock    Stock            `json:"stock"`
	AsOf     time.Time        `json:"as_of"`
}

// Finance aggregates revenue, tips and costs.
type Finance struct {
	PerProfile     []ProfileFinance `json:"per_profile"`
	RevenueTotal   types.Money      `json:"revenue_total"`
	TipsTotal      types.Money      `json:"tips_total"`
	GrossTotal     types.Money      `json:"gross_total"`
	UnitPrice      types.Money      `json:"unit_price"`
	BoxCost        types.Money      `json:"box_cost"`
	BoxesPurchased int64            `json:"boxes_purchased"`
	Costs          types.Money      `json:"costs"`
	NetToSplit     types.Money      `json:"net_to_split"`
	SplitEach      types.Money      `json:"split_each"`      // Truncated toward zero
	SplitRemainder types.Money      `json:"split_remainder"` // NetToSplit - Partners*SplitEach
}

// ProfileFinance is the revenue and tips of one profile.
type ProfileFinance struct {
	Profile string      `json:"profile"`
	Revenue types.Money `json:"revenue"`
	Tips    types.Money `json:"tips"`
	Gross   types.Money `json:"gross"`
}

// ProfileSummary groups one profile's sales by flavor.
type ProfileSummary struct {
	Profile         string       `json:"profile"`
	Flavors         []FlavorLine `json:"flavors"` // Qty desc, ties by first encounter
	Qty             int64        `json:"qty"`
	Total           types.Money  `json:"total"`
	DistinctFlavors int          `json:"distinct_flavors"`
}

// FlavorLine is the quantity and value sold of one flavor.
type FlavorLine struct {
	Flavor string      `json:"flavor"`
	Qty    int64       `json:"qty"`
	Total  types.Money `json:"total"`
}

// Day is one local calendar day of sales across all profiles.
type Day struct {
	Key   string       `json:"key"` // DayLayout in the configured location
	Date  time.Time    `json:"date"`
	Sales []*sale.Sale `json:"sales"` // Newest first
	Qty   int64        `json:"qty"`
	Total types.Money  `json:"total"`
}

// Stock holds unit counters.
type Stock struct {
	RemainingUnits int64       `json:"remaining_units"`
	SoldUnits      int64       `json:"sold_units"`
	TotalUnits     int64       `json:"total_units"`
	Shelf          []ShelfItem `json:"shelf"` // Enabled flavors, catalog order
}

// ShelfItem is the remaining count of one enabled flavor.
type ShelfItem struct {
	Flavor    string `json:"flavor"`
	Remaining int64  `json:"remaining"`
}

// Compute derives a View from snap.
func Compute(snap *Snapshot, opts Options) *View {
	opts = opts.withDefaults()
	cur := opts.Currency

	st := snap.Settings
	if st == nil {
		st = &settings.Settings{}
	}

	v := &View{AsOf: snap.LoadedAt}
	v.Finance = computeFinance(snap, st, cur)
	v.Profiles = make([]ProfileSummary, 0, len(snap.Profiles))
	for _, p := range snap.Profiles {
		v.Profiles = append(v.Profiles, summarize(p, snap.Sales[p], cur))
	}
	v.History = history(snap, opts)
	v.Stock = stock(snap, st)
	return v
}

func computeFinance(snap *Snapshot, st *settings.Settings, cur string) Finance {
	f := Finance{
		PerProfile:     make([]ProfileFinance, 0, len(snap.Profiles)),
		RevenueTotal:   types.Zero(cur),
		TipsTotal:      types.Zero(cur),
		UnitPrice:      types.New(st.UnitPrice, cur),
		BoxCost:        types.New(st.BoxCost, cur),
		BoxesPurchased: st.BoxesPurchased,
		Costs:          types.New(st.Costs(), cur),
	}

	for _, p := range snap.Profiles {
		pf := ProfileFinance{Profile: p, Revenue: types.Zero(cur), Tips: types.Zero(cur)}
		for _, s := range snap.Sales[p] {
			pf.Revenue = pf.Revenue.Add(types.New(s.Total, cur))
		}
		for _, t := range snap.Tips[p] {
			pf.Tips = pf.Tips.Add(types.New(t.Amount, cur))
		}
		pf.Gross = pf.Revenue.Add(pf.Tips)

		f.RevenueTotal = f.RevenueTotal.Add(pf.Revenue)
		f.TipsTotal = f.TipsTotal.Add(pf.Tips)
		f.PerProfile = append(f.PerProfile, pf)
	}

	f.GrossTotal = f.RevenueTotal.Add(f.TipsTotal)
	f.NetToSplit = f.GrossTotal.Subtract(f.Costs)
	f.SplitEach, f.SplitRemainder = f.NetToSplit.Split(Partners)
	return f
}

func summarize(profile string, sales []*sale.Sale, cur string) ProfileSummary {
	ps := ProfileSummary{Profile: profile, Flavors: []FlavorLine{}, Total: types.Zero(cur)}

	index := make(map[string]int)
	for _, s := range sales {
		i, ok := index[s.Flavor]
		if !ok {
			i = len(ps.Flavors)
			index[s.Flavor] = i
			ps.Flavors = append(ps.Flavors, FlavorLine{Flavor: s.Flavor, Total: types.Zero(cur)})
		}
		ps.Flavors[i].Qty += s.Qty
		ps.Flavors[i].Total = ps.Flavors[i].Total.Add(types.New(s.Total, cur))

		ps.Qty += s.Qty
		ps.Total = ps.Total.Add(types.New(s.Total, cur))
	}

	slices.SortStableFunc(ps.Flavors, func(a, b FlavorLine) int {
		switch {
		case a.Qty > b.Qty:
			return -1
		case a.Qty < b.Qty:
			return 1
		}
		return 0
	})
	ps.DistinctFlavors = len(ps.Flavors)
	return ps
}

func history(snap *Snapshot, opts Options) []Day {
	var merged []*sale.Sale
	for _, p := range snap.Profiles {
		for _, s := range snap.Sales[p] {
			if s.CreatedAt.IsZero() {
				continue
			}
			merged = append(merged, s)
		}
	}
	sale.SortNewestFirst(merged)

	days := []Day{}
	for _, s := range merged {
		local := s.CreatedAt.In(opts.Location)
		key := local.Format(DayLayout)
		if n := len(days); n == 0 || days[n-1].Key != key {
			y, m, d := local.Date()
			days = append(days, Day{
				Key:   key,
				Date:  time.Date(y, m, d, 0, 0, 0, 0, opts.Location),
				Total: types.Zero(opts.Currency),
			})
		}
		day := &days[len(days)-1]
		day.Sales = append(day.Sales, s)
		day.Qty += s.Qty
		day.Total = day.Total.Add(types.New(s.Total, opts.Currency))
	}
	return days
}

func stock(snap *Snapshot, st *settings.Settings) Stock {
	out := Stock{
		RemainingUnits: snap.Inventory.Total(),
		Shelf:          make([]ShelfItem, 0, len(st.EnabledFlavors)),
	}
	for _, p := range snap.Profiles {
		for _, s := range snap.Sales[p] {
			out.SoldUnits += s.Qty
		}
	}
	out.TotalUnits = out.RemainingUnits + out.SoldUnits

	for _, f := range st.AllFlavors {
		if st.IsEnabled(f) {
			out.Shelf = append(out.Shelf, ShelfItem{Flavor: f, Remaining: snap.Inventory.Get(f)})
		}
	}
	return out
}
