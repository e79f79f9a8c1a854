// Package memory provides an in-process store with optimistic concurrency.
// Every document carries a version; an atomic unit records the versions it
// reads, buffers its writes and validates the read set at commit.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
	"github.com/xraph/stockledger/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Singletons
	settings  *settings.Settings
	inventory *inventory.Inventory

	// Partitioned by profile, then by ID string
	sales map[string]map[string]*sale.Sale
	tips  map[string]map[string]*tip.Tip

	// Document key -> version of its last write or delete
	versions map[string]uint64
	seq      uint64

	clock  *types.Clock
	hub    *store.Hub
	closed bool
}

// Option configures the memory store.
type Option func(*Store)

// WithClock sets the time source used to stamp created records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = types.NewClock(now) }
}

// WithWatchBuffer sets the per-watcher change buffer.
func WithWatchBuffer(n int) Option {
	return func(s *Store) { s.hub = store.NewHub(n) }
}

func New(opts ...Option) *Store {
	s := &Store{
		sales:    make(map[string]map[string]*sale.Sale),
		tips:     make(map[string]map[string]*tip.Tip),
		versions: make(map[string]uint64),
		clock:    types.NewClock(nil),
		hub:      store.NewHub(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Singleton Store implementation
func (s *Store) GetSettings(_ context.Context) (*settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, stockledger.ErrSettingsNotFound
	}
	return s.settings.Clone(), nil
}

func (s *Store) PutSettings(_ context.Context, st *settings.Settings) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stockledger.ErrStoreClosed
	}
	c := s.putSettingsLocked(st)
	s.mu.Unlock()

	s.hub.Publish(c)
	return nil
}

func (s *Store) GetInventory(_ context.Context) (*inventory.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.inventory == nil {
		return nil, stockledger.ErrInventoryNotFound
	}
	return s.inventory.Clone(), nil
}

func (s *Store) PutInventory(_ context.Context, inv *inventory.Inventory) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stockledger.ErrStoreClosed
	}
	c := s.putInventoryLocked(inv)
	s.mu.Unlock()

	s.hub.Publish(c)
	return nil
}

// Partitioned Store implementation
func (s *Store) ListSales(_ context.Context, profile string, opts sale.ListOpts) ([]*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sale.Sale, 0, len(s.sales[profile]))
	for _, sl := range s.sales[profile] {
		if opts.Match(sl) {
			result = append(result, sl.Clone())
		}
	}
	sale.SortNewestFirst(result)

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) ListTips(_ context.Context, profile string, opts tip.ListOpts) ([]*tip.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tip.Tip, 0, len(s.tips[profile]))
	for _, t := range s.tips[profile] {
		if opts.Match(t) {
			result = append(result, t.Clone())
		}
	}
	tip.SortNewestFirst(result)

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Atomic runs fn against a fresh transaction and commits it once.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return stockledger.ErrStoreClosed
	}

	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}

	changes, err := s.commit(t)
	if err != nil {
		return err
	}
	s.hub.Publish(changes...)
	return nil
}

// Watch subscribes to committed changes.
func (s *Store) Watch(ctx context.Context, topics ...store.Topic) (<-chan store.Change, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, stockledger.ErrStoreClosed
	}
	return s.hub.Subscribe(ctx, topics...), nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return stockledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.hub.Close()
	return nil
}

// commit validates the read set of t and applies its writes under the lock.
func (s *Store) commit(t *tx) ([]store.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, stockledger.ErrStoreClosed
	}

	for key, seen := range t.reads {
		if s.versions[key] != seen {
			return nil, fmt.Errorf("memory: commit: %s changed: %w", key, stockledger.ErrConflict)
		}
	}

	changes := make([]store.Change, 0, len(t.order))
	for _, key := range t.order {
		w := t.writes[key]
		switch {
		case w.settings != nil:
			changes = append(changes, s.putSettingsLocked(w.settings))
		case w.inventory != nil:
			changes = append(changes, s.putInventoryLocked(w.inventory))
		case w.sale != nil && w.delete:
			changes = append(changes, s.deleteSaleLocked(w.sale))
		case w.sale != nil:
			changes = append(changes, s.putSaleLocked(w.sale))
		case w.tip != nil:
			changes = append(changes, s.putTipLocked(w.tip))
		}
	}
	return changes, nil
}

func (s *Store) bump(key string) time.Time {
	s.seq++
	s.versions[key] = s.seq
	return s.clock.Now()
}

func (s *Store) putSettingsLocked(st *settings.Settings) store.Change {
	at := s.bump(store.SettingsKey)
	c := st.Clone()
	c.UpdatedAt = at
	st.UpdatedAt = at
	s.settings = c
	return store.Change{Topic: store.TopicSettings, Op: store.OpPut, Key: store.SettingsKey, At: at}
}

func (s *Store) putInventoryLocked(inv *inventory.Inventory) store.Change {
	at := s.bump(store.InventoryKey)
	c := inv.Clone()
	c.UpdatedAt = at
	inv.UpdatedAt = at
	s.inventory = c
	return store.Change{Topic: store.TopicInventory, Op: store.OpPut, Key: store.InventoryKey, At: at}
}

func (s *Store) putSaleLocked(sl *sale.Sale) store.Change {
	key := store.SaleKey(sl.Profile, sl.ID)
	at := s.bump(key)
	part, ok := s.sales[sl.Profile]
	if !ok {
		part = make(map[string]*sale.Sale)
		s.sales[sl.Profile] = part
	}
	part[sl.ID.String()] = sl.Clone()
	return store.Change{Topic: store.TopicSales, Op: store.OpPut, Profile: sl.Profile, Key: key, At: at}
}

func (s *Store) deleteSaleLocked(sl *sale.Sale) store.Change {
	key := store.SaleKey(sl.Profile, sl.ID)
	at := s.bump(key)
	delete(s.sales[sl.Profile], sl.ID.String())
	return store.Change{Topic: store.TopicSales, Op: store.OpDelete, Profile: sl.Profile, Key: key, At: at}
}

func (s *Store) putTipLocked(t *tip.Tip) store.Change {
	key := store.TipKey(t.Profile, t.ID)
	at := s.bump(key)
	part, ok := s.tips[t.Profile]
	if !ok {
		part = make(map[string]*tip.Tip)
		s.tips[t.Profile] = part
	}
	part[t.ID.String()] = t.Clone()
	return store.Change{Topic: store.TopicTips, Op: store.OpPut, Profile: t.Profile, Key: key, At: at}
}
