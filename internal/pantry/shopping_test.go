package pantry

import (
	"reflect"
	"testing"

	"github.com/pantrio/pantrio/internal/models"
)

func TestShoppingList(t *testing.T) {
	tests := []struct {
		name  string
		items map[string]models.PantryItem
		want  []ShoppingEntry
	}{
		{
			name: "single item below baseline",
			items: map[string]models.PantryItem{
				"milk": {Name: "milk", Amount: 0, Unit: "L", Baseline: 1},
			},
			want: []ShoppingEntry{{Key: "milk", Name: "milk", Need: 1, Unit: "L"}},
		},
		{
			name: "zero baseline never appears",
			items: map[string]models.PantryItem{
				"milk": {Name: "Milk", Amount: 0, Unit: "L", Baseline: 0},
			},
			want: []ShoppingEntry{},
		},
		{
			name: "at baseline is stocked",
			items: map[string]models.PantryItem{
				"milk": {Name: "Milk", Amount: 1, Unit: "L", Baseline: 1},
			},
			want: []ShoppingEntry{},
		},
		{
			name: "sorted by name ascending",
			items: map[string]models.PantryItem{
				"rice": {Name: "Rice", Amount: 0, Unit: "kg", Baseline: 2},
				"eggs": {Name: "Eggs", Amount: 2, Unit: "pcs", Baseline: 6},
				"milk": {Name: "Milk", Amount: 3, Unit: "L", Baseline: 1},
			},
			want: []ShoppingEntry{
				{Key: "eggs", Name: "Eggs", Need: 4, Unit: "pcs"},
				{Key: "rice", Name: "Rice", Need: 2, Unit: "kg"},
			},
		},
		{
			name: "key used when name is empty",
			items: map[string]models.PantryItem{
				"oat-milk": {Amount: 0, Baseline: 2},
			},
			want: []ShoppingEntry{{Key: "oat-milk", Name: "oat-milk", Need: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShoppingList(tt.items)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ShoppingList() = %v, want %v", got, tt.want)
			}

			// Idempotent and order-stable on unchanged input.
			again := ShoppingList(tt.items)
			if !reflect.DeepEqual(got, again) {
				t.Errorf("second derivation differs: %v vs %v", got, again)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	existing := models.PantryItem{Name: "eggs", Amount: 12, Unit: "pcs", Baseline: 6}

	merged := Merge(existing, "Eggs", 6, "pcs")
	if merged.Amount != 18 {
		t.Errorf("Amount = %d, want 18", merged.Amount)
	}
	if merged.Name != "Eggs" {
		t.Errorf("Name = %q, want Eggs (latest spelling wins)", merged.Name)
	}
	if merged.Baseline != 6 {
		t.Errorf("Baseline = %d, want 6 (unchanged)", merged.Baseline)
	}

	drained := Merge(existing, "Eggs", -100, "pcs")
	if drained.Amount != 0 {
		t.Errorf("Amount = %d, want 0 (clamped)", drained.Amount)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-3) != 0 {
		t.Error("negative values must clamp to zero")
	}
	if Clamp(5) != 5 {
		t.Error("positive values must pass through")
	}
}
