package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/store/backends"
)

func TestParseCounts(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]int64
		wantErr bool
	}{
		{"single", []string{"Coco=2"}, map[string]int64{"Coco": 2}, false},
		{"spaces in name", []string{"Frutos rojos=1", "Coco=3"}, map[string]int64{"Frutos rojos": 1, "Coco": 3}, false},
		{"repeated adds up", []string{"Coco=1", "Coco=2"}, map[string]int64{"Coco": 3}, false},
		{"zero kept", []string{"Coco=0"}, map[string]int64{"Coco": 0}, false},
		{"no args", nil, nil, true},
		{"missing equals", []string{"Coco"}, nil, true},
		{"empty name", []string{"=2"}, nil, true},
		{"not a number", []string{"Coco=two"}, nil, true},
		{"negative", []string{"Coco=-1"}, nil, true},
		{"negative after a positive repeat", []string{"Arequipe=3", "Arequipe=-3", "Chocolate=1"}, nil, true},
		{"repeat overflows", []string{"Coco=9223372036854775807", "Coco=1"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCounts(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stockledger.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitProfiles(t *testing.T) {
	assert.Equal(t, []string{"JP", "Pau"}, splitProfiles([]string{"JP, Pau"}))
	assert.Equal(t, []string{"Ana", "Luz"}, splitProfiles([]string{"Ana", " ", "Luz"}))
	assert.Empty(t, splitProfiles(nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, backends.SQLite, cfg.Store)
	assert.Empty(t, cfg.DSN)
	assert.Equal(t, []string{"JP", "Pau"}, cfg.Profiles)
	assert.Equal(t, "cop", cfg.Currency)
	assert.Equal(t, "America/Bogota", cfg.Timezone)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.False(t, cfg.AtomicCatalog)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := []byte("store: sqlite\ndsn: stand.db\nprofiles: [Ana, Luz]\nmax_attempts: 3\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stockledger.yaml"), yaml, 0o600))

	t.Setenv("STOCKLEDGER_MAX_ATTEMPTS", "9")
	t.Setenv("STOCKLEDGER_ATOMIC_CATALOG", "true")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, backends.SQLite, cfg.Store)
	assert.Equal(t, "stand.db", cfg.DSN)
	assert.Equal(t, []string{"Ana", "Luz"}, cfg.Profiles)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.True(t, cfg.AtomicCatalog)
}

func TestLoadConfigProfilesFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOCKLEDGER_PROFILES", "Ana,Luz")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Luz"}, cfg.Profiles)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STOCKLEDGER_CURRENCY=usd\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STOCKLEDGER_CURRENCY") })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "usd", cfg.Currency)
}

func TestLedgerOptionsBadTimezone(t *testing.T) {
	cfg := &config{Profiles: []string{"JP"}, Timezone: "Mars/Olympus"}
	_, err := cfg.ledgerOptions(slog.Default())
	require.Error(t, err)
	assert.True(t, stockledger.IsValidation(err))
}

// cli runs commands against one sqlite file, the way separate invocations would.
type cli struct {
	t   *testing.T
	app *app
	out *bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	out := &bytes.Buffer{}
	cfg := &config{
		Store:       backends.SQLite,
		DSN:         filepath.Join(t.TempDir(), "stand.db"),
		Profiles:    []string{"JP", "Pau"},
		Currency:    "cop",
		Timezone:    "America/Bogota",
		MaxAttempts: 5,
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return &cli{t: t, app: &app{cfg: cfg, logger: logger, out: out}, out: out}
}

func (c *cli) run(args ...string) subcommands.ExitStatus {
	c.t.Helper()
	c.out.Reset()
	fs := flag.NewFlagSet("stockledger", flag.ContinueOnError)
	commander := subcommands.NewCommander(fs, "stockledger")
	register(commander, c.app)
	require.NoError(c.t, fs.Parse(args))
	return commander.Execute(context.Background())
}

type reportJSON struct {
	Finance struct {
		RevenueTotal struct{ Amount int64 } `json:"revenue_total"`
		TipsTotal    struct{ Amount int64 } `json:"tips_total"`
		NetToSplit   struct{ Amount int64 } `json:"net_to_split"`
	} `json:"finance"`
	Stock struct {
		RemainingUnits int64 `json:"remaining_units"`
		SoldUnits      int64 `json:"sold_units"`
	} `json:"stock"`
}

func (c *cli) report() reportJSON {
	c.t.Helper()
	require.Equal(c.t, subcommands.ExitSuccess, c.run("report", "-json"))
	var r reportJSON
	require.NoError(c.t, json.Unmarshal(c.out.Bytes(), &r))
	return r
}

func TestCommandsSellAndDelete(t *testing.T) {
	c := newCLI(t)

	require.Equal(t, subcommands.ExitSuccess, c.run("init"))
	assert.Contains(t, c.out.String(), "Frutos rojos")

	require.Equal(t, subcommands.ExitSuccess, c.run("stock", "Coco=5", "Arequipe=2"))
	require.Equal(t, subcommands.ExitSuccess, c.run("sell", "-p", "JP", "-tip", "1000", "-json", "Coco=2", "Arequipe=1"))

	var receipt struct {
		Sales []struct {
			ID     string `json:"id"`
			Flavor string `json:"flavor"`
		} `json:"sales"`
		SoldTotal int64 `json:"sold_total"`
	}
	require.NoError(t, json.Unmarshal(c.out.Bytes(), &receipt))
	require.Len(t, receipt.Sales, 2)
	assert.Equal(t, int64(13500), receipt.SoldTotal)

	r := c.report()
	assert.Equal(t, int64(13500), r.Finance.RevenueTotal.Amount)
	assert.Equal(t, int64(1000), r.Finance.TipsTotal.Amount)
	assert.Equal(t, int64(4), r.Stock.RemainingUnits)
	assert.Equal(t, int64(3), r.Stock.SoldUnits)

	var cocoID string
	for _, s := range receipt.Sales {
		if s.Flavor == "Coco" {
			cocoID = s.ID
		}
	}
	require.NotEmpty(t, cocoID)
	require.Equal(t, subcommands.ExitSuccess, c.run("delete-sale", "-p", "JP", cocoID))
	assert.Contains(t, c.out.String(), "2 Coco returned to stock")

	r = c.report()
	assert.Equal(t, int64(4500), r.Finance.RevenueTotal.Amount)
	assert.Equal(t, int64(6), r.Stock.RemainingUnits)
}

func TestCommandsRejectOverselling(t *testing.T) {
	c := newCLI(t)

	require.Equal(t, subcommands.ExitSuccess, c.run("stock", "Coco=1"))
	assert.Equal(t, subcommands.ExitFailure, c.run("sell", "-p", "JP", "Coco=2"))
	assert.Equal(t, int64(1), c.report().Stock.RemainingUnits)
}

func TestCommandsUsageErrors(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, subcommands.ExitUsageError, c.run("sell", "Coco=1"))
	assert.Equal(t, subcommands.ExitUsageError, c.run("sell", "-p", "JP", "Coco"))
	assert.Equal(t, subcommands.ExitUsageError, c.run("sell", "-p", "Nobody", "Coco=1"))
	assert.Equal(t, subcommands.ExitUsageError, c.run("delete-sale", "-p", "JP"))
	assert.Equal(t, subcommands.ExitUsageError, c.run("delete-sale", "-p", "JP", "tip_01h455vb4pex5vsknk084sn02q"))
	assert.Equal(t, subcommands.ExitUsageError, c.run("flavors", "-add", "Mango", "-toggle", "Coco"))
}

func TestCommandsCatalogAndFinance(t *testing.T) {
	c := newCLI(t)

	require.Equal(t, subcommands.ExitSuccess, c.run("flavors", "-add", "Mango"))
	assert.Contains(t, c.out.String(), "Mango")

	require.Equal(t, subcommands.ExitSuccess, c.run("flavors", "-toggle", "Coco"))
	assert.Contains(t, c.out.String(), "Coco disabled")
	assert.Equal(t, subcommands.ExitUsageError, c.run("sell", "-p", "JP", "Coco=1"))

	require.Equal(t, subcommands.ExitSuccess, c.run("finance", "-boxes", "2"))
	assert.Contains(t, c.out.String(), "2 boxes x $188.000")
	assert.Equal(t, int64(-376000), c.report().Finance.NetToSplit.Amount)

	require.Equal(t, subcommands.ExitSuccess, c.run("finance", "-box-cost", "-5"))
	assert.Contains(t, c.out.String(), "2 boxes x $0")
}

func TestCommandsHistory(t *testing.T) {
	c := newCLI(t)

	require.Equal(t, subcommands.ExitSuccess, c.run("stock", "Coco=3"))
	require.Equal(t, subcommands.ExitSuccess, c.run("sell", "-p", "Pau", "Coco=1"))
	require.Equal(t, subcommands.ExitSuccess, c.run("sell", "-p", "JP", "Coco=1"))

	require.Equal(t, subcommands.ExitSuccess, c.run("history", "-json"))
	var days []struct {
		Key string `json:"key"`
		Qty int64  `json:"qty"`
	}
	require.NoError(t, json.Unmarshal(c.out.Bytes(), &days))
	require.Len(t, days, 1)
	assert.Equal(t, int64(2), days[0].Qty)
}
