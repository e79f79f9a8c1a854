package audithook

// Action constants for audit events.
const (
	// Sale actions
	ActionSaleRecorded = "sale.recorded"
	ActionSaleDeleted  = "sale.deleted"
	ActionSaleRejected = "sale.rejected"
	ActionTipRecorded  = "tip.recorded"

	// Transaction actions
	ActionTransactionConflict = "transaction.conflict"

	// Catalog actions
	ActionFlavorAdded    = "flavor.added"
	ActionFlavorEnabled  = "flavor.enabled"
	ActionFlavorDisabled = "flavor.disabled"

	// Stock and finance actions
	ActionStockSet       = "stock.set"
	ActionFinanceUpdated = "finance.updated"
)

// Resource constants for audit events.
const (
	ResourceSale        = "sale"
	ResourceTip         = "tip"
	ResourceInventory   = "inventory"
	ResourceSettings    = "settings"
	ResourceTransaction = "transaction"
)

// Category constants for audit events.
const (
	CategorySales   = "sales"
	CategoryStock   = "stock"
	CategoryCatalog = "catalog"
	CategoryFinance = "finance"
	CategorySystem  = "system"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
