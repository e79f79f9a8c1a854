// Command stockledger operates a stand's ledger from the terminal: record
// and delete sales, edit the catalog, stock and finance settings, and print
// the derived reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitFailure))
	}
	a := &app{cfg: cfg, logger: newLogger(cfg.LogLevel), out: os.Stdout}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	register(commander, a)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// register adds the stockledger subcommands to c.
func register(c *subcommands.Commander, a *app) {
	c.Register(&initCmd{app: a}, "setup")

	c.Register(&sellCmd{app: a}, "sales")
	c.Register(&deleteSaleCmd{app: a}, "sales")

	c.Register(&flavorsCmd{app: a}, "catalog")
	c.Register(&stockCmd{app: a}, "catalog")
	c.Register(&financeCmd{app: a}, "catalog")

	c.Register(&reportCmd{app: a}, "reports")
	c.Register(&historyCmd{app: a}, "reports")
	c.Register(&watchCmd{app: a}, "reports")
}
