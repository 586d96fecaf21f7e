package models

// PantryItem is one tracked item in a group's pantry, keyed in Group.Pantry
// by the slug of its name.
type PantryItem struct {
	// Name is the display name ("Oat Milk").
	Name string `json:"name"`

	// Amount is the quantity on hand. Never negative.
	Amount int `json:"amount"`

	// Unit is a free-form unit label ("L", "pcs", "loaf").
	Unit string `json:"unit,omitempty"`

	// Baseline is the restock threshold. An item needs restocking iff
	// Baseline > 0 and Amount < Baseline. Never negative.
	Baseline int `json:"baseline"`
}

// NeedsRestock reports whether the item is due for the shopping list.
func (it PantryItem) NeedsRestock() bool {
	return it.Baseline > 0 && it.Amount < it.Baseline
}
