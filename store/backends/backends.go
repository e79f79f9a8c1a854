// Package backends opens a store.Store by driver name. It is shared by the
// Forge extension and the command-line tool.
package backends

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/store/memory"
	"github.com/xraph/stockledger/store/mongo"
	"github.com/xraph/stockledger/store/postgres"
	"github.com/xraph/stockledger/store/sqlite"
)

// Driver names.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	Postgres = "postgres"
	Mongo    = "mongo"
)

// DefaultSQLitePath is used when the sqlite driver has no DSN.
const DefaultSQLitePath = "stockledger.db"

// DefaultMongoDatabase is used when the mongo driver has no database name.
const DefaultMongoDatabase = "stockledger"

// Config selects and addresses a backend.
type Config struct {
	Driver   string // memory (default), sqlite, postgres or mongo
	DSN      string // File path, connection string or URI
	Database string // Mongo database name
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", Memory:
		return memory.New(), nil
	case SQLite:
		path := cfg.DSN
		if path == "" {
			path = DefaultSQLitePath
		}
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Postgres, "postgresql", "pg":
		if cfg.DSN == "" {
			return nil, stockledger.ValidationError{Field: "dsn", Message: "postgres requires a connection string"}
		}
		s, err := postgres.Open(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case Mongo, "mongodb":
		if cfg.DSN == "" {
			return nil, stockledger.ValidationError{Field: "dsn", Message: "mongo requires a URI"}
		}
		database := cfg.Database
		if database == "" {
			database = DefaultMongoDatabase
		}
		s, err := mongo.Open(ctx, cfg.DSN, database, mongo.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, stockledger.ValidationError{Field: "store", Message: fmt.Sprintf("unknown driver %q", cfg.Driver)}
	}
}
