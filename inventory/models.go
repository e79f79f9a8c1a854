// Package inventory defines the singleton stock document: remaining units per flavor.
package inventory

import (
	"maps"
	"slices"
	"time"
)

// Inventory is the singleton stored under inventory/current.
type Inventory struct {
	Counts    map[string]int64 `json:"counts"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// New returns an inventory with every flavor present at zero.
func New(flavors []string) *Inventory {
	inv := &Inventory{Counts: make(map[string]int64, len(flavors))}
	for _, f := range flavors {
		inv.Counts[f] = 0
	}
	return inv
}

// Clone returns a deep copy.
func (inv *Inventory) Clone() *Inventory {
	if inv == nil {
		return nil
	}
	c := *inv
	c.Counts = maps.Clone(inv.Counts)
	if c.Counts == nil {
		c.Counts = map[string]int64{}
	}
	return &c
}

// Get returns the remaining units of flavor. Missing entries count as zero.
func (inv *Inventory) Get(flavor string) int64 {
	if inv == nil {
		return 0
	}
	return inv.Counts[flavor]
}

// Backfill adds a zero entry for every flavor that has none and reports
// whether anything was added.
func (inv *Inventory) Backfill(flavors []string) bool {
	if inv.Counts == nil {
		inv.Counts = make(map[string]int64, len(flavors))
	}
	changed := false
	for _, f := range flavors {
		if _, ok := inv.Counts[f]; !ok {
			inv.Counts[f] = 0
			changed = true
		}
	}
	return changed
}

// Total returns the units on hand across all flavors.
func (inv *Inventory) Total() int64 {
	if inv == nil {
		return 0
	}
	var total int64
	for _, n := range inv.Counts {
		total += n
	}
	return total
}

// Flavors returns the flavors with an entry, sorted.
func (inv *Inventory) Flavors() []string {
	if inv == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(inv.Counts))
}
