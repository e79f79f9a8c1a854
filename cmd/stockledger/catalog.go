package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/types"
)

type initCmd struct{ *app }

func (*initCmd) Name() string     { return "init" }
func (*initCmd) Synopsis() string { return "create the default settings and inventory" }
func (*initCmd) Usage() string {
	return `stockledger init

  Migrates the store and writes the default catalog, prices and an inventory
  entry for every flavor. Existing documents are left as they are.
`
}

func (*initCmd) SetFlags(*flag.FlagSet) {}

func (c *initCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		st, err := l.Settings(ctx)
		if err != nil {
			return err
		}
		inv, err := l.Inventory(ctx)
		if err != nil {
			return err
		}
		c.printCatalog(st, inv)
		return nil
	})
}

type flavorsCmd struct {
	*app
	add    string
	toggle string
}

func (*flavorsCmd) Name() string     { return "flavors" }
func (*flavorsCmd) Synopsis() string { return "list, add or enable/disable flavors" }
func (*flavorsCmd) Usage() string {
	return `stockledger flavors [-add <name> | -toggle <name>]

  Without flags, lists the catalog. -add appends a flavor, enabled, with no
  stock. -toggle flips whether a flavor is offered for sale.
`
}

func (c *flavorsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.add, "add", "", "Flavor to add to the catalog.")
	f.StringVar(&c.toggle, "toggle", "", "Flavor to enable or disable.")
}

func (c *flavorsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.add != "" && c.toggle != "" {
		return c.fail(usageError("flags", "-add and -toggle are exclusive"))
	}

	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		switch {
		case c.add != "":
			added, err := l.AddFlavor(ctx, c.add)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(c.out, "%s is already in the catalog\n", c.add)
			}
		case c.toggle != "":
			enabled, err := l.ToggleEnabled(ctx, c.toggle)
			if err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Fprintf(c.out, "%s %s\n", c.toggle, state)
		}

		st, err := l.Settings(ctx)
		if err != nil {
			return err
		}
		inv, err := l.Inventory(ctx)
		if err != nil {
			return err
		}
		c.printCatalog(st, inv)
		return nil
	})
}

type stockCmd struct{ *app }

func (*stockCmd) Name() string     { return "stock" }
func (*stockCmd) Synopsis() string { return "show or overwrite stock counts" }
func (*stockCmd) Usage() string {
	return `stockledger stock [<flavor>=<count>...]

  Without arguments, prints the stock of every flavor. With arguments,
  overwrites the named counts. Flavors not named keep their count.
`
}

func (*stockCmd) SetFlags(*flag.FlagSet) {}

func (c *stockCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var counts map[string]int64
	if f.NArg() > 0 {
		var err error
		if counts, err = parseCounts(f.Args()); err != nil {
			return c.fail(err)
		}
	}

	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		if counts != nil {
			if _, err := l.SetStock(ctx, counts); err != nil {
				return err
			}
		}
		st, err := l.Settings(ctx)
		if err != nil {
			return err
		}
		inv, err := l.Inventory(ctx)
		if err != nil {
			return err
		}
		c.printCatalog(st, inv)
		return nil
	})
}

type financeCmd struct {
	*app
	boxes   int64
	boxCost int64
}

func (*financeCmd) Name() string     { return "finance" }
func (*financeCmd) Synopsis() string { return "show or edit boxes purchased and box cost" }
func (*financeCmd) Usage() string {
	return `stockledger finance [-boxes <n>] [-box-cost <amount>]

  Only the flags given are written. Negative values are stored as 0.
`
}

func (c *financeCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.boxes, "boxes", 0, "Number of boxes purchased.")
	f.Int64Var(&c.boxCost, "box-cost", 0, "Cost of one box, in the smallest currency unit.")
}

func (c *financeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	set := map[string]bool{}
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		if set["boxes"] {
			if _, err := l.SetBoxesPurchased(ctx, c.boxes); err != nil {
				return err
			}
		}
		if set["box-cost"] {
			if _, err := l.SetBoxCost(ctx, c.boxCost); err != nil {
				return err
			}
		}
		view, err := l.Project(ctx)
		if err != nil {
			return err
		}
		c.printFinance(&view.Finance)
		return nil
	})
}

func (a *app) printCatalog(st *settings.Settings, inv *inventory.Inventory) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FLAVOR\tENABLED\tSTOCK")
	for _, f := range st.AllFlavors {
		fmt.Fprintf(w, "%s\t%t\t%d\n", f, st.IsEnabled(f), inv.Get(f))
	}
	fmt.Fprintf(w, "\nunit price\t%s\n", types.New(st.UnitPrice, a.cfg.Currency))
	_ = w.Flush()
}
