package store

import (
	"context"
	"time"

	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/inventory"
	"github.com/xraph/stockledger/sale"
	"github.com/xraph/stockledger/settings"
	"github.com/xraph/stockledger/tip"
)

// Store is the unified storage interface for all ledger entities.
// Methods outside Atomic are single-document and non-transactional.
type Store interface {
	// Singleton methods
	GetSettings(ctx context.Context) (*settings.Settings, error)
	PutSettings(ctx context.Context, s *settings.Settings) error
	GetInventory(ctx context.Context) (*inventory.Inventory, error)
	PutInventory(ctx context.Context, inv *inventory.Inventory) error

	// Partitioned methods, newest first
	ListSales(ctx context.Context, profile string, opts sale.ListOpts) ([]*sale.Sale, error)
	ListTips(ctx context.Context, profile string, opts tip.ListOpts) ([]*tip.Tip, error)

	// Atomic runs fn as one all-or-nothing unit. It makes exactly one
	// attempt; if any document read by fn changed before commit it returns an
	// error wrapping stockledger.ErrConflict and nothing is written.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Watch streams per-document change notifications for the given topics
	// (all topics when none are given) until ctx is done.
	Watch(ctx context.Context, topics ...Topic) (<-chan Change, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside one atomic unit. Reads observe the
// unit's own buffered writes.
type Tx interface {
	settings.Store
	inventory.Store
	sale.Store
	tip.Store
}

// Topic names a document family.
type Topic string

// Document families.
const (
	TopicSettings  Topic = "settings"
	TopicInventory Topic = "inventory"
	TopicSales     Topic = "sales"
	TopicTips      Topic = "tips"
)

// AllTopics lists every document family.
var AllTopics = []Topic{TopicSettings, TopicInventory, TopicSales, TopicTips}

// Op is the kind of change applied to a document.
type Op string

// Change operations.
const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Change notifies that one document was written or removed.
type Change struct {
	Topic   Topic     `json:"topic"`
	Op      Op        `json:"op"`
	Profile string    `json:"profile,omitempty"` // Set for sales and tips
	Key     string    `json:"key"`               // Logical document path
	At      time.Time `json:"at"`
}

// Logical document keys.
const (
	SettingsKey  = "settings/app"
	InventoryKey = "inventory/current"
)

// SaleKey returns the logical path of a sale document.
func SaleKey(profile string, saleID id.SaleID) string {
	return "profiles/" + profile + "/sales/" + saleID.String()
}

// TipKey returns the logical path of a tip document.
func TipKey(profile string, tipID id.TipID) string {
	return "profiles/" + profile + "/tips/" + tipID.String()
}

// TopicFilter returns a predicate matching the given topics, or every topic
// when none are given.
func TopicFilter(topics ...Topic) func(Topic) bool {
	if len(topics) == 0 {
		return func(Topic) bool { return true }
	}
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return func(t Topic) bool { return set[t] }
}
