// Package settings defines the singleton configuration document of the stand:
// pricing, box costs and the flavor catalog.
package settings

import (
	"fmt"
	"slices"
	"time"
)

// Settings is the singleton stored under settings/app.
type Settings struct {
	UnitPrice      int64     `json:"unit_price"`      // Price of one unit, minor currency unit
	BoxCost        int64     `json:"box_cost"`        // Cost of one purchased box
	BoxesPurchased int64     `json:"boxes_purchased"` // Boxes bought so far
	AllFlavors     []string  `json:"all_flavors"`     // Catalog, insertion ordered
	EnabledFlavors []string  `json:"enabled_flavors"` // Subset offered for sale
	UpdatedAt      time.Time `json:"updated_at"`
}

// Default values used when the stand is first initialized.
const (
	DefaultUnitPrice int64 = 4500
	DefaultBoxCost   int64 = 188000
)

// DefaultFlavors is the starting catalog.
var DefaultFlavors = []string{"Arequipe", "Chocolate", "Frutos rojos", "Coco"}

// Defaults returns the settings written when none exist yet.
func Defaults() *Settings {
	return &Settings{
		UnitPrice:      DefaultUnitPrice,
		BoxCost:        DefaultBoxCost,
		BoxesPurchased: 0,
		AllFlavors:     slices.Clone(DefaultFlavors),
		EnabledFlavors: slices.Clone(DefaultFlavors),
	}
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	c.AllFlavors = slices.Clone(s.AllFlavors)
	c.EnabledFlavors = slices.Clone(s.EnabledFlavors)
	return &c
}

// HasFlavor reports whether flavor is in the catalog.
func (s *Settings) HasFlavor(flavor string) bool {
	return slices.Contains(s.AllFlavors, flavor)
}

// IsEnabled reports whether flavor is currently offered for sale.
func (s *Settings) IsEnabled(flavor string) bool {
	return slices.Contains(s.EnabledFlavors, flavor)
}

// Toggle flips the enabled membership of flavor and reports the new state.
// Disabling keeps the order of the remaining flavors; enabling appends.
func (s *Settings) Toggle(flavor string) bool {
	if i := slices.Index(s.EnabledFlavors, flavor); i >= 0 {
		s.EnabledFlavors = slices.Delete(slices.Clone(s.EnabledFlavors), i, i+1)
		return false
	}
	s.EnabledFlavors = append(slices.Clone(s.EnabledFlavors), flavor)
	return true
}

// AddFlavor appends name to the catalog and enables it. It returns false
// when name is already in the catalog.
func (s *Settings) AddFlavor(name string) bool {
	if s.HasFlavor(name) {
		return false
	}
	s.AllFlavors = append(slices.Clone(s.AllFlavors), name)
	if !s.IsEnabled(name) {
		s.EnabledFlavors = append(slices.Clone(s.EnabledFlavors), name)
	}
	return true
}

// Costs returns the total spent on boxes.
func (s *Settings) Costs() int64 {
	return s.BoxesPurchased * s.BoxCost
}

// Validate checks the catalog invariants.
func (s *Settings) Validate() error {
	if s.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative, got %d", s.UnitPrice)
	}
	if s.BoxCost < 0 {
		return fmt.Errorf("box cost must not be negative, got %d", s.BoxCost)
	}
	if s.BoxesPurchased < 0 {
		return fmt.Errorf("boxes purchased must not be negative, got %d", s.BoxesPurchased)
	}
	seen := make(map[string]bool, len(s.AllFlavors))
	for _, f := range s.AllFlavors {
		if seen[f] {
			return fmt.Errorf("duplicate flavor %q in catalog", f)
		}
		seen[f] = true
	}
	for _, f := range s.EnabledFlavors {
		if !seen[f] {
			return fmt.Errorf("enabled flavor %q is not in the catalog", f)
		}
	}
	return nil
}
