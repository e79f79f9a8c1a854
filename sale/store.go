package sale

import (
	"context"

	"github.com/xraph/stockledger/id"
)

// Lister reads the sales partition of one profile, newest first.
type Lister interface {
	ListSales(ctx context.Context, profile string, opts ListOpts) ([]*Sale, error)
}

// Store is the transactional sale surface.
type Store interface {
	GetSale(ctx context.Context, profile string, saleID id.SaleID) (*Sale, error)
	CreateSale(ctx context.Context, s *Sale) error
	DeleteSale(ctx context.Context, profile string, saleID id.SaleID) error
}
