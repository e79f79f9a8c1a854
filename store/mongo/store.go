// Package mongo provides a MongoDB store. Atomic units run as one session
// transaction with snapshot reads and majority writes; write conflicts
// surface as stockledger.ErrConflict. Watch follows a database change stream.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	ledgerstore "github.com/xraph/stockledger/store"
	"github.com/xraph/stockledger/tip"
	"github.com/xraph/stockledger/types"
)

// Collection name constants.
const (
	colSettings  = "ledger_settings"
	colInventory = "ledger_inventory"
	colSales     = "ledger_sales"
	colTips      = "ledger_tips"
)

// Server error code for a write that lost a race inside a transaction.
const codeWriteConflict = 112

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	grove *grove.DB // nil when built from a raw database
	db    *mongo.Database

	clock  *types.Clock
	logger *slog.Logger
	buffer int

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures the MongoDB store.
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

// New creates a MongoDB store on a Grove database.
func New(db *grove.DB, opts ...Option) *Store {
	mdb := mongodriver.Unwrap(db)
	s := newStore(mdb.Collection(colSettings).Database(), opts)
	s.grove = db
	return s
}

// NewFromDatabase creates a store on a driver database handle.
// Close disconnects the database's client.
func NewFromDatabase(db *mongo.Database, opts ...Option) *Store {
	return newStore(db, opts)
}

// Open connects to uri and uses the database named database.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("stockledger/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("stockledger/mongo: connect: %w", err)
	}
	return NewFromDatabase(client.Database(database), opts...), nil
}

func newStore(db *mongo.Database, opts []Option) *Store {
	s := &Store{
		db:     db,
		clock:  types.NewClock(nil),
		logger: slog.Default(),
		buffer: ledgerstore.DefaultHubBuffer,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying driver database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("stockledger/mongo: migrate %s indexes: %w: %w", col, stockledger.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}
	if s.grove != nil {
		return s.grove.Ping(ctx)
	}
	return s.db.Client().Ping(ctx, nil)
}

// Close stops all watchers and closes the connection.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.grove != nil {
			err = s.grove.Close()
			return
		}
		err = s.db.Client().Disconnect(context.Background())
	})
	return err
}

func (s *Store) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ==================== Singletons ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	var m settingsModel
	err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stockledger.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("stockledger/mongo: get settings: %w", err)
	}
	return fromSettingsModel(&m), nil
}

func (s *Store) PutSettings(ctx context.Context, st *settings.Settings) error {
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}
	st.UpdatedAt = s.clock.Now()
	if err := s.replace(ctx, colSettings, settingsDocID, toSettingsModel(st)); err != nil {
		return fmt.Errorf("stockledger/mongo: put settings: %w", err)
	}
	return nil
}

func (s *Store) GetInventory(ctx context.Context) (*inventory.Inventory, error) {
	var m inventoryModel
	err := s.db.Collection(colInventory).FindOne(ctx, bson.M{"_id": inventoryDocID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stockledger.ErrInventoryNotFound
		}
		return nil, fmt.Errorf("stockledger/mongo: get inventory: %w", err)
	}
	return fromInventoryModel(&m), nil
}

func (s *Store) PutInventory(ctx context.Context, inv *inventory.Inventory) error {
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}
	inv.UpdatedAt = s.clock.Now()
	if err := s.replace(ctx, colInventory, inventoryDocID, toInventoryModel(inv)); err != nil {
		return fmt.Errorf("stockledger/mongo: put inventory: %w", err)
	}
	return nil
}

func (s *Store) replace(ctx context.Context, col, docID string, doc any) error {
	_, err := s.db.Collection(col).ReplaceOne(ctx, bson.M{"_id": docID}, doc, options.Replace().SetUpsert(true))
	return err
}

// ==================== Partitions ====================

func (s *Store) ListSales(ctx context.Context, profile string, opts sale.ListOpts) ([]*sale.Sale, error) {
	var models []saleModel
	if err := s.list(ctx, colSales, profile, opts.Since, opts.Until, opts.Limit, &models); err != nil {
		return nil, fmt.Errorf("stockledger/mongo: list sales: %w", err)
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
	if err := s.list(ctx, colTips, profile, opts.Since, opts.Until, opts.Limit, &models); err != nil {
		return nil, fmt.Errorf("stockledger/mongo: list tips: %w", err)
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

func (s *Store) list(ctx context.Context, col, profile string, since, until time.Time, limit int, out any) error {
	cursor, err := s.db.Collection(col).Find(ctx, listFilter(profile, since, until), listOptions(limit))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func listFilter(profile string, since, until time.Time) bson.M {
	filter := bson.M{"profile": profile}
	window := bson.M{}
	if !since.IsZero() {
		window["$gte"] = since
	}
	if !until.IsZero() {
		window["$lt"] = until
	}
	if len(window) > 0 {
		filter["created_at"] = window
	}
	return filter
}

func listOptions(limit int) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

// ==================== Atomic ====================

// Atomic runs fn inside one session transaction. Commit and abort run
// detached from ctx cancellation.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return stockledger.ErrStoreClosed
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("stockledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		return fmt.Errorf("stockledger/mongo: start transaction: %w", err)
	}

	sctx := mongo.NewSessionContext(ctx, sess)
	if err := fn(sctx, &tx{s: s, ctx: sctx}); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(sctx))
		return mapConflict("atomic", err)
	}
	if err := sess.CommitTransaction(context.WithoutCancel(sctx)); err != nil {
		return mapConflict("commit", err)
	}
	return nil
}

// mapConflict wraps transient transaction errors and write conflicts with
// ErrConflict. Every other error is returned unchanged.
func mapConflict(op string, err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(codeWriteConflict)) {
		return fmt.Errorf("stockledger/mongo: %s: %w: %w", op, stockledger.ErrConflict, err)
	}
	return err
}

// ==================== Watch ====================

// changeEvent is the subset of a change stream event the store reads.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

// Watch follows a change stream over the ledger collections until ctx is
// done or the store is closed. Delete events carry no profile.
func (s *Store) Watch(ctx context.Context, topics ...ledgerstore.Topic) (<-chan ledgerstore.Change, error) {
	if s.isClosed() {
		return nil, stockledger.ErrStoreClosed
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ns.coll": bson.M{"$in": bson.A{colSettings, colInventory, colSales, colTips}},
		}}},
	}
	cs, err := s.db.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("stockledger/mongo: watch: %w", err)
	}

	wctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-wctx.Done():
		}
	}()

	out := make(chan ledgerstore.Change, s.buffer)
	match := ledgerstore.TopicFilter(topics...)
	go func() {
		defer close(out)
		defer cancel()
		defer func() { _ = cs.Close(context.Background()) }()

		for cs.Next(wctx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				s.logger.Warn("stockledger/mongo: bad change event", "error", err)
				continue
			}
			c, ok := s.toChange(&ev)
			if !ok || !match(c.Topic) {
				continue
			}
			select {
			case out <- c:
			default:
				// Receiver is behind; the next change triggers a fresh read anyway.
			}
		}
		if err := cs.Err(); err != nil && wctx.Err() == nil {
			s.logger.Warn("stockledger/mongo: watch stopped", "error", err)
		}
	}()
	return out, nil
}

func (s *Store) toChange(ev *changeEvent) (ledgerstore.Change, bool) {
	c := ledgerstore.Change{At: s.clock.Now()}
	switch ev.OperationType {
	case "insert", "update", "replace":
		c.Op = ledgerstore.OpPut
	case "delete":
		c.Op = ledgerstore.OpDelete
	default:
		return ledgerstore.Change{}, false
	}
	if ev.FullDocument != nil {
		if p, ok := ev.FullDocument.Lookup("profile").StringValueOK(); ok {
			c.Profile = p
		}
	}

	switch ev.NS.Coll {
	case colSettings:
		c.Topic, c.Key = ledgerstore.TopicSettings, ledgerstore.SettingsKey
	case colInventory:
		c.Topic, c.Key = ledgerstore.TopicInventory, ledgerstore.InventoryKey
	case colSales:
		saleID, err := id.ParseSaleID(ev.DocumentKey.ID)
		if err != nil {
			return ledgerstore.Change{}, false
		}
		c.Topic, c.Key = ledgerstore.TopicSales, ledgerstore.SaleKey(c.Profile, saleID)
	case colTips:
		tipID, err := id.ParseTipID(ev.DocumentKey.ID)
		if err != nil {
			return ledgerstore.Change{}, false
		}
		c.Topic, c.Key = ledgerstore.TopicTips, ledgerstore.TipKey(c.Profile, tipID)
	default:
		return ledgerstore.Change{}, false
	}
	return c, true
}

// ==================== Helpers ====================

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSales: {
			{Keys: bson.D{{Key: "profile", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colTips: {
			{Keys: bson.D{{Key: "profile", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
