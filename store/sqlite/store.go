// Package sqlite provides an embedded SQLite store built on gorm and the
// pure-Go glebarez driver. The settings and inventory rows carry a version
// column; writes inside an atomic unit are guarded by the version the unit
// read, so a concurrent writer turns the commit into a conflict.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	glebarez "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
	"github.com/xraph/stockledger/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via gorm.
type Store struct {
	db     *gorm.DB
	clock  *types.Clock
	hub    *store.Hub
	closed atomic.Bool
}

// Option configures the SQLite store.
type Option func(*Store)

// WithClock sets the time source used to stamp created records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = types.NewClock(now) }
}

// WithWatchBuffer sets the per-watcher change buffer.
func WithWatchBuffer(n int) Option {
	return func(s *Store) { s.hub = store.NewHub(n) }
}

// Open opens the SQLite database at path (":memory:" for a private
// in-memory database) with a single connection.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(glebarez.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("stockledger/sqlite: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("stockledger/sqlite: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	return New(db, opts...), nil
}

// New creates a store on an existing gorm connection.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		clock: types.NewClock(nil),
		hub:   store.NewHub(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying gorm database for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates the ledger tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(schema()...); err != nil {
		return fmt.Errorf("stockledger/sqlite: migrate: %w: %w", stockledger.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return stockledger.ErrStoreClosed
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close stops all watchers and closes the database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.hub.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ==================== Singletons ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	m := new(settingsModel)
	err := s.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(m).Error
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("stockledger/sqlite: get settings: %w", err)
	}
	return fromSettingsModel(m), nil
}

// PutSettings overwrites the settings row regardless of its version.
func (s *Store) PutSettings(ctx context.Context, st *settings.Settings) error {
	return s.write(ctx, "put settings", func(t *tx) error {
		return t.PutSettings(ctx, st)
	})
}

func (s *Store) GetInventory(ctx context.Context) (*inventory.Inventory, error) {
	m := new(inventoryModel)
	err := s.db.WithContext(ctx).Where("id = ?", inventoryRowID).Take(m).Error
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("stockledger/sqlite: get inventory: %w", err)
	}
	return fromInventoryModel(m), nil
}

// PutInventory overwrites the inventory row regardless of its version.
func (s *Store) PutInventory(ctx context.Context, inv *inventory.Inventory) error {
	return s.write(ctx, "put inventory", func(t *tx) error {
		return t.PutInventory(ctx, inv)
	})
}

// ==================== Partitions ====================

func (s *Store) ListSales(ctx context.Context, profile string, opts sale.ListOpts) ([]*sale.Sale, error) {
	var models []saleModel
	q := s.listQuery(ctx, profile, opts.Since, opts.Until, opts.Limit)
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("stockledger/sqlite: list sales: %w", err)
	}

	result := make([]*sale.Sale, len(models))
	for i := range models {
		sl, err := fromSaleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sl
	}
	return result, nil
}

func (s *Store) ListTips(ctx context.Context, profile string, opts tip.ListOpts) ([]*tip.Tip, error) {
	var models []tipModel
	q := s.listQuery(ctx, profile, opts.Since, opts.Until, opts.Limit)
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("stockledger/sqlite: list tips: %w", err)
	}

	result := make([]*tip.Tip, len(models))
	for i := range models {
		t, err := fromTipModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) listQuery(ctx context.Context, profile string, since, until time.Time, limit int) *gorm.DB {
	q := s.db.WithContext(ctx).Where("profile = ?", profile)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since.UnixNano())
	}
	if !until.IsZero() {
		q = q.Where("created_at < ?", until.UnixNano())
	}
	q = q.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// ==================== Atomic / Watch ====================

// Atomic runs fn inside one SQLite transaction. The transaction itself runs
// detached from ctx cancellation so a started commit completes.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return stockledger.ErrStoreClosed
	}

	var changes []store.Change
	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(gtx *gorm.DB) error {
		t := newTx(s, gtx)
		if err := fn(ctx, t); err != nil {
			return err
		}
		changes = t.changes
		return nil
	})
	if err != nil {
		return mapBusy("atomic", err)
	}
	s.hub.Publish(changes...)
	return nil
}

// Watch subscribes to changes committed through this store.
func (s *Store) Watch(ctx context.Context, topics ...store.Topic) (<-chan store.Change, error) {
	if s.closed.Load() {
		return nil, stockledger.ErrStoreClosed
	}
	return s.hub.Subscribe(ctx, topics...), nil
}

// write runs a single non-transactional mutation and publishes its change.
func (s *Store) write(ctx context.Context, op string, fn func(t *tx) error) error {
	if s.closed.Load() {
		return stockledger.ErrStoreClosed
	}

	var changes []store.Change
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		t := newTx(s, gtx)
		if err := fn(t); err != nil {
			return err
		}
		changes = t.changes
		return nil
	})
	if err != nil {
		return mapBusy(op, err)
	}
	s.hub.Publish(changes...)
	return nil
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// mapBusy turns SQLite lock contention into a conflict.
func mapBusy(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("stockledger/sqlite: %s: %w: %w", op, stockledger.ErrConflict, err)
	}
	return err
}
