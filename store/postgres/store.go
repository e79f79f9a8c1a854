// Package postgres provides a PostgreSQL store built on pgx. Atomic units run
// as SERIALIZABLE transactions and serialization failures surface as
// conflicts. Watch listens on a channel fed by row triggers.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
	"github.com/xraph/stockledger/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Singleton row IDs.
const (
	settingsRowID  = "app"
	inventoryRowID = "current"
)

// SQLSTATE codes reported when a serializable transaction loses a race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store implements store.Store using PostgreSQL via pgx.
type Store struct {
	pool   *pgxpool.Pool
	clock  *types.Clock
	logger *slog.Logger
	buffer int

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures the PostgreSQL store.
type Option func(*Store)

// WithClock sets the time source used to stamp created records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = types.NewClock(now) }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithWatchBuffer sets the per-watcher change buffer.
func WithWatchBuffer(n int) Option {
	return func(s *Store) { s.buffer = n }
}

// Open connects a pool to dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: open: %w", err)
	}
	return New(pool, opts...), nil
}

// New creates a store on an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		clock:  types.NewClock(nil),
		logger: slog.Default(),
		buffer: store.DefaultHubBuffer,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}
	return s.pool.Ping(ctx)
}

// Close stops all watchers and closes the pool.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.pool.Close()
	})
	return nil
}

func (s *Store) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ==================== Non-transactional ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	return getSettings(ctx, s.pool)
}

func (s *Store) PutSettings(ctx context.Context, st *settings.Settings) error {
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}
	return putSettings(ctx, s.pool, st, s.clock.Now())
}

func (s *Store) GetInventory(ctx context.Context) (*inventory.Inventory, error) {
	return getInventory(ctx, s.pool)
}

func (s *Store) PutInventory(ctx context.Context, inv *inventory.Inventory) error {
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}
	return putInventory(ctx, s.pool, inv, s.clock.Now())
}

func (s *Store) ListSales(ctx context.Context, profile string, opts sale.ListOpts) ([]*sale.Sale, error) {
	q, args := listQuery(`SELECT id, profile, flavor, qty, unit_price, total, created_at FROM ledger_sales`,
		profile, opts.Since, opts.Until, opts.Limit)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: list sales: %w", err)
	}
	sales, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: list sales: %w", err)
	}
	return sales, nil
}

func (s *Store) ListTips(ctx context.Context, profile string, opts tip.ListOpts) ([]*tip.Tip, error) {
	q, args := listQuery(`SELECT id, profile, amount, created_at FROM ledger_tips`,
		profile, opts.Since, opts.Until, opts.Limit)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: list tips: %w", err)
	}
	tips, err := pgx.CollectRows(rows, scanTip)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: list tips: %w", err)
	}
	return tips, nil
}

func listQuery(base, profile string, since, until time.Time, limit int) (string, []any) {
	q := base + ` WHERE profile = $1`
	args := []any{profile}
	if !since.IsZero() {
		args = append(args, since)
		q += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !until.IsZero() {
		args = append(args, until)
		q += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return q, args
}

// ==================== Atomic ====================

// Atomic runs fn in one SERIALIZABLE transaction. Commit and rollback run
// detached from ctx cancellation.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}

	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapConflict("begin", err)
	}
	detached := context.WithoutCancel(ctx)

	if err := fn(ctx, &tx{s: s, q: pgtx}); err != nil {
		_ = pgtx.Rollback(detached)
		return mapConflict("atomic", err)
	}
	if err := pgtx.Commit(detached); err != nil {
		return mapConflict("commit", err)
	}
	return nil
}

// mapConflict wraps serialization failures and deadlocks with ErrConflict.
// Every other error is returned unchanged.
func mapConflict(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("stockledger/postgres: %s: %w: %w", op, stockledger.ErrConflict, err)
		}
	}
	return err
}

// ==================== Watch ====================

// notification is the payload written by the stockledger_notify trigger.
type notification struct {
	Table   string `json:"table"`
	Op      string `json:"op"`
	ID      string `json:"id"`
	Profile string `json:"profile"`
}

// Watch holds one pooled connection in LISTEN mode until ctx is done or the
// store is closed.
func (s *Store) Watch(ctx context.Context, topics ...store.Topic) (<-chan store.Change, error) {
	if s.isClosed() {
		return nil, stockledger.ErrStoreClosed
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: watch: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("stockledger/postgres: watch: %w", err)
	}

	wctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-wctx.Done():
		}
	}()

	out := make(chan store.Change, s.buffer)
	match := store.TopicFilter(topics...)
	go func() {
		defer close(out)
		defer cancel()
		defer func() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN *")
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(wctx)
			if err != nil {
				if wctx.Err() == nil {
					s.logger.Warn("stockledger/postgres: watch stopped", "error", err)
				}
				return
			}
			c, ok := s.decode(n.Payload)
			if !ok || !match(c.Topic) {
				continue
			}
			select {
			case out <- c:
			default:
				// Receiver is behind; the next change triggers a fresh read anyway.
			}
		}
	}()
	return out, nil
}

func (s *Store) decode(payload string) (store.Change, bool) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.Warn("stockledger/postgres: bad notification", "payload", payload, "error", err)
		return store.Change{}, false
	}

	c := store.Change{Op: store.OpPut, Profile: n.Profile, At: s.clock.Now()}
	if n.Op == "delete" {
		c.Op = store.OpDelete
	}
	switch n.Table {
	case "ledger_settings":
		c.Topic, c.Key = store.TopicSettings, store.SettingsKey
	case "ledger_inventory":
		c.Topic, c.Key = store.TopicInventory, store.InventoryKey
	case "ledger_sales":
		saleID, err := id.ParseSaleID(n.ID)
		if err != nil {
			return store.Change{}, false
		}
		c.Topic, c.Key = store.TopicSales, store.SaleKey(n.Profile, saleID)
	case "ledger_tips":
		tipID, err := id.ParseTipID(n.ID)
		if err != nil {
			return store.Change{}, false
		}
		c.Topic, c.Key = store.TopicTips, store.TipKey(n.Profile, tipID)
	default:
		return store.Change{}, false
	}
	return c, true
}
