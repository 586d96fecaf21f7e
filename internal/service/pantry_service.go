package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/models"
	"github.com/pantrio/pantrio/internal/pantry"
	"github.com/pantrio/pantrio/internal/slug"
)

// PantryService mutates a group's pantry map and derives its shopping list.
// All mutations funnel through the group document; members may track
// quantities, admins additionally control baselines and item removal.
type PantryService struct {
	store docstore.Store
}

// NewPantryService creates a new PantryService with the given storage backend.
func NewPantryService(store docstore.Store) *PantryService {
	return &PantryService{store: store}
}

// AddOrMerge adds amount of an item, creating it with baseline 0 when new.
// The item key is the slug of the name; adding under an existing key
// accumulates the amount and adopts the latest name/unit spelling.
func (s *PantryService) AddOrMerge(ctx context.Context, groupID, actorUID, name string, amount int, unit string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("item name is required: %w", ErrValidation)
	}
	if amount < 0 {
		return "", fmt.Errorf("amount cannot be negative: %w", ErrValidation)
	}
	key := slug.Make(name)
	if key == "" {
		return "", fmt.Errorf("item name has no usable characters: %w", ErrValidation)
	}

	err := s.mutatePantry(ctx, groupID, actorUID, false, func(g *models.Group) (docstore.Fields, error) {
		item, exists := g.Pantry[key]
		if exists {
			item = pantry.Merge(item, name, amount, unit)
		} else {
			item = models.PantryItem{Name: name, Amount: amount, Unit: unit, Baseline: 0}
		}
		return docstore.Fields{"pantry." + key: item}, nil
	})
	if err != nil {
		return "", err
	}

	slog.Info("Pantry item added", "group_id", groupID, "key", key, "amount", amount)
	return key, nil
}

// SetAmount sets an item's quantity, clamped at zero.
func (s *PantryService) SetAmount(ctx context.Context, groupID, actorUID, key string, amount int) error {
	return s.patchItem(ctx, groupID, actorUID, key, false, func(item models.PantryItem) models.PantryItem {
		item.Amount = pantry.Clamp(amount)
		return item
	})
}

// Adjust nudges an item's quantity by delta, clamped at zero.
func (s *PantryService) Adjust(ctx context.Context, groupID, actorUID, key string, delta int) error {
	return s.patchItem(ctx, groupID, actorUID, key, false, func(item models.PantryItem) models.PantryItem {
		item.Amount = pantry.Clamp(item.Amount + delta)
		return item
	})
}

// SetUnit changes an item's unit label.
func (s *PantryService) SetUnit(ctx context.Context, groupID, actorUID, key, unit string) error {
	return s.patchItem(ctx, groupID, actorUID, key, false, func(item models.PantryItem) models.PantryItem {
		item.Unit = unit
		return item
	})
}

// SetBaseline sets an item's restock threshold, clamped at zero. Admin-only.
func (s *PantryService) SetBaseline(ctx context.Context, groupID, actorUID, key string, baseline int) error {
	return s.patchItem(ctx, groupID, actorUID, key, true, func(item models.PantryItem) models.PantryItem {
		item.Baseline = pantry.Clamp(baseline)
		return item
	})
}

// Dismiss satisfies a shopping-list entry without recording what was
// bought: the amount jumps to the baseline if it was below it.
func (s *PantryService) Dismiss(ctx context.Context, groupID, actorUID, key string) error {
	return s.patchItem(ctx, groupID, actorUID, key, false, func(item models.PantryItem) models.PantryItem {
		item.Amount = max(item.Amount, item.Baseline)
		return item
	})
}

// Remove deletes an item from the pantry. Admin-only.
func (s *PantryService) Remove(ctx context.Context, groupID, actorUID, key string) error {
	err := s.mutatePantry(ctx, groupID, actorUID, true, func(g *models.Group) (docstore.Fields, error) {
		if _, exists := g.Pantry[key]; !exists {
			return nil, fmt.Errorf("pantry item %q: %w", key, ErrNotFound)
		}
		return docstore.Fields{"pantry." + key: docstore.Delete()}, nil
	})
	if err != nil {
		return err
	}
	slog.Info("Pantry item removed", "group_id", groupID, "key", key)
	return nil
}

// EnsureDefaults seeds the starter pantry into a group whose pantry is
// still empty. A populated pantry is left alone.
func (s *PantryService) EnsureDefaults(ctx context.Context, groupID, actorUID string) error {
	return s.mutatePantry(ctx, groupID, actorUID, false, func(g *models.Group) (docstore.Fields, error) {
		if len(g.Pantry) > 0 {
			return docstore.Fields{}, nil
		}
		return docstore.Fields{"pantry": pantry.Defaults()}, nil
	})
}

// ShoppingList derives the current restock list for a group.
func (s *PantryService) ShoppingList(ctx context.Context, groupID string) ([]pantry.ShoppingEntry, error) {
	snap, err := s.store.Get(ctx, GroupPath(groupID))
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	g, err := groupFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	return pantry.ShoppingList(g.Pantry), nil
}

// patchItem rewrites one pantry item through fn. NotFound when the key is
// absent, i.e. the item was removed by an admin under the caller's feet.
func (s *PantryService) patchItem(ctx context.Context, groupID, actorUID, key string, adminOnly bool, fn func(models.PantryItem) models.PantryItem) error {
	return s.mutatePantry(ctx, groupID, actorUID, adminOnly, func(g *models.Group) (docstore.Fields, error) {
		item, exists := g.Pantry[key]
		if !exists {
			return nil, fmt.Errorf("pantry item %q: %w", key, ErrNotFound)
		}
		return docstore.Fields{"pantry." + key: fn(item)}, nil
	})
}

// mutatePantry runs a pantry mutation inside the group's write transaction,
// enforcing the shared gates: the group must be live, the actor a member,
// and an admin where required. Every pantry write bumps pantryUpdatedAt.
func (s *PantryService) mutatePantry(ctx context.Context, groupID, actorUID string, adminOnly bool, fn func(*models.Group) (docstore.Fields, error)) error {
	return s.store.Mutate(ctx, GroupPath(groupID), func(cur docstore.Snapshot) (docstore.Fields, error) {
		g, err := groupFromSnapshot(cur)
		if err != nil {
			return nil, err
		}
		if g.Deleted() {
			return nil, fmt.Errorf("group %q: %w", groupID, ErrGroupDeleted)
		}
		if !g.IsMember(actorUID) {
			return nil, fmt.Errorf("only members can use the pantry: %w", ErrForbidden)
		}
		if adminOnly && !g.IsAdmin(actorUID) {
			return nil, fmt.Errorf("only admins can do that: %w", ErrForbidden)
		}

		fields, err := fn(g)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return docstore.Fields{}, nil
		}
		fields["pantryUpdatedAt"] = docstore.ServerTimestamp()
		return fields, nil
	})
}
