package inventory

import "context"

// Reader loads the inventory singleton.
type Reader interface {
	GetInventory(ctx context.Context) (*Inventory, error)
}

// Store reads and overwrites the inventory singleton.
type Store interface {
	Reader
	PutInventory(ctx context.Context, inv *Inventory) error
}
