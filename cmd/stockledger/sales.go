package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/types"
)

type sellCmd struct {
	*app
	profile string
	tip     int64
	json    bool
}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "record a sale, taking the units out of stock" }
func (*sellCmd) Usage() string {
	return `stockledger sell -p <profile> [-tip <amount>] <flavor>=<qty>...

  Records one sale per flavor for the profile and, when -tip is positive, a
  tip. Nothing is written unless every flavor has enough stock.
`
}

func (c *sellCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.profile, "p", "", "Profile making the sale.")
	f.Int64Var(&c.tip, "tip", 0, "Tip received with the sale, in the smallest currency unit.")
	f.BoolVar(&c.json, "json", false, "Print the receipt as JSON.")
}

func (c *sellCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.profile == "" {
		return c.fail(usageError("profile", "-p is required"))
	}
	requested, err := parseCounts(f.Args())
	if err != nil {
		return c.fail(err)
	}

	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		receipt, err := l.RecordSale(ctx, c.profile, requested, c.tip)
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(receipt)
		}

		money := func(n int64) string { return types.New(n, c.cfg.Currency).String() }
		for _, s := range receipt.Sales {
			fmt.Fprintf(c.out, "%s\t%s x%d\t%s\n", s.ID, s.Flavor, s.Qty, money(s.Total))
		}
		if receipt.Tip != nil {
			fmt.Fprintf(c.out, "%s\ttip\t%s\n", receipt.Tip.ID, money(receipt.Tip.Amount))
		}
		fmt.Fprintf(c.out, "sold %d units for %s\n", receipt.SoldQty, money(receipt.SoldTotal))
		return nil
	})
}

type deleteSaleCmd struct {
	*app
	profile string
}

func (*deleteSaleCmd) Name() string     { return "delete-sale" }
func (*deleteSaleCmd) Synopsis() string { return "delete a sale and return its units to stock" }
func (*deleteSaleCmd) Usage() string {
	return `stockledger delete-sale -p <profile> <sale-id>
`
}

func (c *deleteSaleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.profile, "p", "", "Profile that made the sale.")
}

func (c *deleteSaleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.profile == "" {
		return c.fail(usageError("profile", "-p is required"))
	}
	if f.NArg() != 1 {
		return c.fail(usageError("sale_id", "expected exactly one sale id"))
	}
	saleID, err := id.ParseSaleID(f.Arg(0))
	if err != nil {
		return c.fail(usageError("sale_id", err.Error()))
	}

	return c.run(ctx, false, func(l *stockledger.Ledger) error {
		s, err := l.DeleteSale(ctx, c.profile, saleID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "deleted %s: %d %s returned to stock\n", s.ID, s.Qty, s.Flavor)
		return nil
	})
}
