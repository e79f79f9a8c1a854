package stockledger

import (
	"github.com/xraph/stockledger/projection"
	"github.com/xraph/stockledger/types"
)

// Re-export common types for convenience so users don't have to import sub-packages.

// Money is re-exported from types package.
type Money = types.Money

// View is re-exported from projection package.
type View = projection.View

// Re-export Money constructors
var (
	COP  = types.COP
	USD  = types.USD
	EUR  = types.EUR
	Zero = types.Zero
	Sum  = types.Sum
)
