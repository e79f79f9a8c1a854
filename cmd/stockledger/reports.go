package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/projection"
)

type reportCmd struct {
	*app
	json bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "print finance totals, per-profile summaries and stock" }
func (*reportCmd) Usage() string {
	return `stockledger report [-json]
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print the full view as JSON.")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		view, err := l.Project(ctx)
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(view)
		}
		c.printView(view)
		return nil
	})
}

type historyCmd struct {
	*app
	days int
	json bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print sales grouped by local day, newest first" }
func (*historyCmd) Usage() string {
	return `stockledger history [-n <days>] [-json]
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "n", 0, "Only print the most recent n days (0 prints all).")
	f.BoolVar(&c.json, "json", false, "Print the days as JSON.")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		view, err := l.Project(ctx)
		if err != nil {
			return err
		}
		days := view.History
		if c.days > 0 && len(days) > c.days {
			days = days[:c.days]
		}
		if c.json {
			return c.printJSON(days)
		}
		c.printHistory(days)
		return nil
	})
}

type watchCmd struct {
	*app
	json bool
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "print the report again on every change until interrupted" }
func (*watchCmd) Usage() string {
	return `stockledger watch [-json]

  Follows the store's change feed. Only useful with a shared store
  (sqlite, postgres or mongo).
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print each view as JSON.")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, true, func(l *stockledger.Ledger) error {
		views, err := l.Subscribe(ctx)
		if err != nil {
			return err
		}
		for view := range views {
			if c.json {
				if err := c.printJSON(view); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(c.out, "── %s ──\n", view.AsOf.Format(time.DateTime))
			c.printView(view)
		}
		return nil
	})
}

func (a *app) printView(v *projection.View) {
	a.printFinance(&v.Finance)
	fmt.Fprintln(a.out)

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, p := range v.Profiles {
		fmt.Fprintf(w, "%s\t%d units\t%s\t%d flavors\n", p.Profile, p.Qty, p.Total, p.DistinctFlavors)
		for _, line := range p.Flavors {
			fmt.Fprintf(w, "  %s\t%d\t%s\t\n", line.Flavor, line.Qty, line.Total)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "stock\t%d remaining\t%d sold\t%d total\n", v.Stock.RemainingUnits, v.Stock.SoldUnits, v.Stock.TotalUnits)
	for _, item := range v.Stock.Shelf {
		fmt.Fprintf(w, "  %s\t%d\t\t\n", item.Flavor, item.Remaining)
	}
	_ = w.Flush()
}

func (a *app) printFinance(f *projection.Finance) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PROFILE\tREVENUE\tTIPS\tGROSS\t")
	for _, p := range f.PerProfile {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", p.Profile, p.Revenue, p.Tips, p.Gross)
	}
	fmt.Fprintf(w, "total\t%s\t%s\t%s\t\n", f.RevenueTotal, f.TipsTotal, f.GrossTotal)
	_ = w.Flush()

	fmt.Fprintf(a.out, "\ncosts %s (%d boxes x %s)\n", f.Costs, f.BoxesPurchased, f.BoxCost)
	fmt.Fprintf(a.out, "net %s, %s each", f.NetToSplit, f.SplitEach)
	if !f.SplitRemainder.IsZero() {
		fmt.Fprintf(a.out, " (%s left over)", f.SplitRemainder)
	}
	fmt.Fprintln(a.out)
}

func (a *app) printHistory(days []projection.Day) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d units\t%s\t\n", d.Key, d.Qty, d.Total)
		for _, s := range d.Sales {
			fmt.Fprintf(w, "  %s\t%s\t%s x%d\t%s\n", s.CreatedAt.Format(time.TimeOnly), s.Profile, s.Flavor, s.Qty, s.ID)
		}
	}
	_ = w.Flush()
}
