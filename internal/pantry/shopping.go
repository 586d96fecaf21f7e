// Package pantry holds the pure pantry arithmetic: restock derivation and
// quantity clamping. Nothing here touches storage; callers feed it the
// current pantry map and persist the results themselves.
package pantry

import (
	"sort"

	"github.com/pantrio/pantrio/internal/models"
)

// ShoppingEntry is one line of the derived shopping list.
type ShoppingEntry struct {
	// Key is the pantry map key of the item.
	Key string `json:"key"`

	// Name is the item display name.
	Name string `json:"name"`

	// Need is how many units to buy to get back to baseline. Always >= 1.
	Need int `json:"need"`

	// Unit is the item's unit label.
	Unit string `json:"unit,omitempty"`
}

// ShoppingList derives the restock list from a pantry: every item whose
// baseline is set and whose amount is below it, with need = baseline-amount,
// sorted by item name ascending. Deterministic and idempotent; the result is
// never persisted.
func ShoppingList(items map[string]models.PantryItem) []ShoppingEntry {
	entries := make([]ShoppingEntry, 0, len(items))
	for key, it := range items {
		if !it.NeedsRestock() {
			continue
		}
		name := it.Name
		if name == "" {
			name = key
		}
		entries = append(entries, ShoppingEntry{
			Key:  key,
			Name: name,
			Need: it.Baseline - it.Amount,
			Unit: it.Unit,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Clamp floors a quantity at zero.
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Merge folds a new delivery into an existing item: the amount accumulates
// (clamped at zero) and the name and unit take the latest spelling.
func Merge(existing models.PantryItem, name string, amount int, unit string) models.PantryItem {
	existing.Name = name
	existing.Unit = unit
	existing.Amount = Clamp(existing.Amount + amount)
	return existing
}

// Defaults is the starter pantry seeded into a group whose pantry is empty.
func Defaults() map[string]models.PantryItem {
	return map[string]models.PantryItem{
		"eggs":   {Name: "Eggs", Amount: 12, Unit: "pcs", Baseline: 6},
		"milk":   {Name: "Milk", Amount: 1, Unit: "L", Baseline: 1},
		"bread":  {Name: "Bread", Amount: 1, Unit: "loaf", Baseline: 1},
		"butter": {Name: "Butter", Amount: 1, Unit: "pack", Baseline: 1},
		"rice":   {Name: "Rice", Amount: 2, Unit: "kg", Baseline: 1},
	}
}
