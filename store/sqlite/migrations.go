package sqlite

// schema lists the tables owned by the store in creation order.
func schema() []any {
	return []any{
		&settingsModel{},
		&inventoryModel{},
		&saleModel{},
		&tipModel{},
	}
}
