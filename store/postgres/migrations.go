package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/stockledger"
)

// Migration is one versioned schema change.
type Migration struct {
	Version string
	Name    string
	Up      string
}

// NotifyChannel is the LISTEN/NOTIFY channel fed by the row triggers.
const NotifyChannel = "stockledger_changes"

// Migrations is the ordered schema history of the store.
var Migrations = []Migration{
	{
		Version: "20250301000001",
		Name:    "create_ledger_settings",
		Up: `
CREATE TABLE IF NOT EXISTS ledger_settings (
    id              TEXT PRIMARY KEY,
    unit_price      BIGINT NOT NULL DEFAULT 0,
    box_cost        BIGINT NOT NULL DEFAULT 0,
    boxes_purchased BIGINT NOT NULL DEFAULT 0,
    all_flavors     JSONB NOT NULL DEFAULT '[]',
    enabled_flavors JSONB NOT NULL DEFAULT '[]',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Version: "20250301000002",
		Name:    "create_ledger_inventory",
		Up: `
CREATE TABLE IF NOT EXISTS ledger_inventory (
    id         TEXT PRIMARY KEY,
    counts     JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		Version: "20250301000003",
		Name:    "create_ledger_sales",
		Up: `
CREATE TABLE IF NOT EXISTS ledger_sales (
    id         TEXT PRIMARY KEY,
    profile    TEXT NOT NULL,
    flavor     TEXT NOT NULL,
    qty        BIGINT NOT NULL CHECK (qty > 0),
    unit_price BIGINT NOT NULL,
    total      BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_sales_profile_created ON ledger_sales (profile, created_at DESC);`,
	},
	{
		Version: "20250301000004",
		Name:    "create_ledger_tips",
		Up: `
CREATE TABLE IF NOT EXISTS ledger_tips (
    id         TEXT PRIMARY KEY,
    profile    TEXT NOT NULL,
    amount     BIGINT NOT NULL CHECK (amount > 0),
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_tips_profile_created ON ledger_tips (profile, created_at DESC);`,
	},
	{
		Version: "20250301000005",
		Name:    "create_change_triggers",
		Up: `
CREATE OR REPLACE FUNCTION stockledger_notify() RETURNS trigger AS $$
DECLARE
    rec RECORD;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
    ELSE
        rec := NEW;
    END IF;
    PERFORM pg_notify('` + NotifyChannel + `', json_build_object(
        'table', TG_TABLE_NAME,
        'op', lower(TG_OP),
        'id', rec.id,
        'profile', to_jsonb(rec)->>'profile'
    )::text);
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ledger_settings_notify ON ledger_settings;
CREATE TRIGGER ledger_settings_notify AFTER INSERT OR UPDATE OR DELETE ON ledger_settings
    FOR EACH ROW EXECUTE FUNCTION stockledger_notify();

DROP TRIGGER IF EXISTS ledger_inventory_notify ON ledger_inventory;
CREATE TRIGGER ledger_inventory_notify AFTER INSERT OR UPDATE OR DELETE ON ledger_inventory
    FOR EACH ROW EXECUTE FUNCTION stockledger_notify();

DROP TRIGGER IF EXISTS ledger_sales_notify ON ledger_sales;
CREATE TRIGGER ledger_sales_notify AFTER INSERT OR UPDATE OR DELETE ON ledger_sales
    FOR EACH ROW EXECUTE FUNCTION stockledger_notify();

DROP TRIGGER IF EXISTS ledger_tips_notify ON ledger_tips;
CREATE TRIGGER ledger_tips_notify AFTER INSERT OR UPDATE OR DELETE ON ledger_tips
    FOR EACH ROW EXECUTE FUNCTION stockledger_notify();`,
	},
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS ledger_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Migrate applies every migration not yet recorded in ledger_migrations,
// each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("stockledger/postgres: migrate: %w: %w", stockledger.ErrMigrationFailed, err)
	}

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, `SELECT version FROM ledger_migrations`)
	if err != nil {
		return fmt.Errorf("stockledger/postgres: migrate: %w: %w", stockledger.ErrMigrationFailed, err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("stockledger/postgres: migrate: %w: %w", stockledger.ErrMigrationFailed, err)
	}
	for _, v := range versions {
		applied[v] = true
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO ledger_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("stockledger/postgres: migrate %s: %w: %w", m.Name, stockledger.ErrMigrationFailed, err)
		}
		s.logger.Debug("stockledger/postgres: applied migration", "version", m.Version, "name", m.Name)
	}
	return nil
}
