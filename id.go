package stockledger

import "github.com/xraph/stockledger/id"

// ID is the identifier type for sales and tips.
type ID = id.ID

// SaleID identifies a sale.
type SaleID = id.SaleID

// TipID identifies a tip.
type TipID = id.TipID
