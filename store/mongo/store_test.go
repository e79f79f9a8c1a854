package mongo

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/stockledger"
	"github.com/xraph/stockledger/id"
	"github.com/xraph/stockledger/sale"
	ledgerstore "github.com/xraph/stockledger/store"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMapConflict(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"write conflict", mongo.CommandError{Code: codeWriteConflict, Name: "WriteConflict"}, true},
		{"transient label", mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}, true},
		{"duplicate key", mongo.CommandError{Code: 11000}, false},
		{"domain error", stockledger.ErrInsufficientStock, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapConflict("commit", tt.err)
			assert.Equal(t, tt.conflict, stockledger.IsConflict(err))
			assert.Contains(t, err.Error(), tt.err.Error())
		})
	}
}

func TestListFilter(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.M{"profile": "JP"}, listFilter("JP", time.Time{}, time.Time{}))
	assert.Equal(t, bson.M{
		"profile":    "Pau",
		"created_at": bson.M{"$gte": since, "$lt": since.Add(time.Hour)},
	}, listFilter("Pau", since, since.Add(time.Hour)))
}

func TestToChange(t *testing.T) {
	s := newStore(nil, []Option{WithLogger(quiet())})
	saleID := id.NewSaleID()
	doc, err := bson.Marshal(bson.M{"_id": saleID.String(), "profile": "JP"})
	require.NoError(t, err)

	ev := &changeEvent{OperationType: "insert", FullDocument: doc}
	ev.NS.Coll = colSales
	ev.DocumentKey.ID = saleID.String()

	c, ok := s.toChange(ev)
	require.True(t, ok)
	assert.Equal(t, ledgerstore.TopicSales, c.Topic)
	assert.Equal(t, ledgerstore.OpPut, c.Op)
	assert.Equal(t, "JP", c.Profile)
	assert.Equal(t, ledgerstore.SaleKey("JP", saleID), c.Key)

	inv := &changeEvent{OperationType: "replace"}
	inv.NS.Coll = colInventory
	inv.DocumentKey.ID = inventoryDocID
	c, ok = s.toChange(inv)
	require.True(t, ok)
	assert.Equal(t, ledgerstore.TopicInventory, c.Topic)
	assert.Empty(t, c.Profile)

	drop := &changeEvent{OperationType: "drop"}
	drop.NS.Coll = colSales
	_, ok = s.toChange(drop)
	assert.False(t, ok)
}

// TestAgainstReplicaSet runs the engine against a live replica set when
// STOCKLEDGER_TEST_MONGO_URI is set. Transactions require a replica set.
func TestAgainstReplicaSet(t *testing.T) {
	uri := os.Getenv("STOCKLEDGER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("STOCKLEDGER_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, uri, "stockledger_test_"+time.Now().Format("20060102150405"), WithLogger(quiet()))
	require.NoError(t, err)
	defer func() { _ = s.Database().Drop(context.Background()) }()

	l := stockledger.New(s,
		stockledger.WithLogger(quiet()),
		stockledger.WithProjection(false),
	)
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	_, err = l.SetStock(ctx, map[string]int64{"Coco": 3})
	require.NoError(t, err)
	r, err := l.RecordSale(ctx, "Pau", map[string]int64{"Coco": 2}, 300)
	require.NoError(t, err)
	require.NotNil(t, r.Tip)

	_, err = l.RecordSale(ctx, "Pau", map[string]int64{"Coco": 2}, 0)
	assert.True(t, stockledger.IsInsufficientStock(err))

	_, err = l.DeleteSale(ctx, "Pau", r.Sales[0].ID)
	require.NoError(t, err)
	inv, err := l.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), inv.Counts["Coco"])

	sales, err := l.ListSales(ctx, "Pau", sale.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}
