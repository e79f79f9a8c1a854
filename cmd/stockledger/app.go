package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/store/backends"
)

// app carries what every subcommand shares. A command process is short
// lived, so one ledger is opened per Execute.
type app struct {
	cfg    *config
	logger *slog.Logger
	out    io.Writer
}

// open connects the configured store and starts a ledger on it. live turns
// on the projection worker, which only watch needs.
func (a *app) open(ctx context.Context, live bool) (*stockledger.Ledger, error) {
	s, err := backends.Open(ctx, a.cfg.backend(), a.logger)
	if err != nil {
		return nil, err
	}
	if a.cfg.Store == backends.Memory {
		a.logger.Warn("using the memory store, nothing is kept after exit")
	}

	opts, err := a.cfg.ledgerOptions(a.logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	opts = append(opts, stockledger.WithProjection(live))

	l := stockledger.New(s, opts...)
	if err := l.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return l, nil
}

// run opens a ledger, calls fn and stops the ledger again.
func (a *app) run(ctx context.Context, live bool, fn func(l *stockledger.Ledger) error) subcommands.ExitStatus {
	l, err := a.open(ctx, live)
	if err != nil {
		return a.fail(err)
	}
	err = fn(l)
	if stopErr := l.Stop(); stopErr != nil {
		a.logger.Warn("stop ledger", "error", stopErr)
	}
	if err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}

func (a *app) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	if stockledger.IsValidation(err) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseCounts reads flavor=quantity arguments. Flavors may contain spaces
// when quoted by the shell. Quantities must not be negative; repeated
// flavors add up.
func parseCounts(args []string) (map[string]int64, error) {
	if len(args) == 0 {
		return nil, stockledger.ValidationError{Field: "args", Message: "expected flavor=quantity arguments"}
	}
	counts := make(map[string]int64, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, stockledger.ValidationError{Field: "args", Message: fmt.Sprintf("%q is not flavor=quantity", arg)}
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, stockledger.ValidationError{Field: "args", Message: fmt.Sprintf("%q: quantity is not a whole number", arg)}
		}
		if n < 0 {
			return nil, stockledger.ValidationError{Field: "args", Message: fmt.Sprintf("%q: quantity must not be negative", arg)}
		}
		if counts[name] > math.MaxInt64-n {
			return nil, stockledger.ValidationError{Field: "args", Message: fmt.Sprintf("%q: quantity is too large", arg)}
		}
		counts[name] += n
	}
	return counts, nil
}

// usageError reports bad arguments in the same shape as ledger validation.
func usageError(field, msg string) error {
	return stockledger.ValidationError{Field: field, Message: msg}
}
