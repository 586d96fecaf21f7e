package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/models"
	"github.com/pantrio/pantrio/internal/slug"
)

// GroupService is the group membership engine: it owns every mutation of a
// group's member list and admin-gated settings, and keeps the denormalized
// UserUIDs index in lockstep with the member list.
type GroupService struct {
	store docstore.Store
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store docstore.Store) *GroupService {
	return &GroupService{store: store}
}

// GroupPath returns the document path of a group.
func GroupPath(groupID string) string {
	return "groups/" + groupID
}

// Create makes a new group with the actor as owner and first member. The
// document ID is the slug of the name; the join key starts out identical.
func (s *GroupService) Create(ctx context.Context, actor *models.Profile, name, password string) (*models.Group, error) {
	slog.Info("Create group request", "name", name, "actor", actor.UID)

	if name == "" || password == "" {
		return nil, fmt.Errorf("group name and password are required: %w", ErrValidation)
	}
	gid := slug.Make(name)
	if gid == "" {
		return nil, fmt.Errorf("group name has no usable characters: %w", ErrValidation)
	}

	// Read-then-write: two simultaneous creations with the same name can
	// race. Known hazard, unchanged from the data model this inherits.
	if _, err := s.store.Get(ctx, GroupPath(gid)); err == nil {
		return nil, fmt.Errorf("group %q: %w", gid, ErrConflict)
	}

	now := time.Now().UnixMilli()
	member := models.NewMember(actor, now)
	err := s.store.Set(ctx, GroupPath(gid), docstore.Fields{
		"name":      name,
		"joinKey":   gid,
		"password":  password,
		"ownerUid":  actor.UID,
		"users":     []models.Member{member},
		"userUids":  []string{actor.UID},
		"pantry":    map[string]models.PantryItem{},
		"createdAt": docstore.ServerTimestamp(),
		"updatedAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	slog.Info("Group created", "group_id", gid, "owner", actor.UID)
	return s.Load(ctx, gid)
}

// Load fetches a group once. Soft-deleted groups still load; callers decide
// how to treat the tombstone.
func (s *GroupService) Load(ctx context.Context, groupID string) (*models.Group, error) {
	snap, err := s.store.Get(ctx, GroupPath(groupID))
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	return groupFromSnapshot(snap)
}

// Resolve finds a group by join key, falling back to the document ID for
// groups that never changed their key.
func (s *GroupService) Resolve(ctx context.Context, joinKey string) (*models.Group, error) {
	key := slug.Make(joinKey)
	if key == "" {
		return nil, fmt.Errorf("join key is required: %w", ErrValidation)
	}

	snaps, err := s.store.GetAll(ctx, docstore.Query{
		Collection: "groups",
		Filter:     &docstore.Filter{Field: "joinKey", Op: "==", Value: key},
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up join key: %w", err)
	}
	if len(snaps) > 0 {
		return groupFromSnapshot(snaps[0])
	}
	return s.Load(ctx, key)
}

// Join adds the actor to the group resolved by joinKey. Joining a group one
// already belongs to is a no-op. The membership append runs as a single
// conditional update so concurrent joins cannot overwrite each other.
func (s *GroupService) Join(ctx context.Context, actor *models.Profile, joinKey, password string) (*models.Group, error) {
	slog.Info("Join request", "join_key", joinKey, "actor", actor.UID)

	g, err := s.Resolve(ctx, joinKey)
	if err != nil {
		return nil, err
	}

	member := models.NewMember(actor, time.Now().UnixMilli())
	err = s.store.UpdateIf(ctx, GroupPath(g.ID), docstore.Fields{
		"users":     docstore.ArrayUnion(member),
		"userUids":  docstore.ArrayUnion(actor.UID),
		"updatedAt": docstore.ServerTimestamp(),
	}, func(cur docstore.Snapshot) error {
		live, err := groupFromSnapshot(cur)
		if err != nil {
			return err
		}
		if live.Deleted() {
			return fmt.Errorf("group %q: %w", g.ID, ErrGroupDeleted)
		}
		if live.Password != password {
			return fmt.Errorf("incorrect group password: %w", ErrUnauthorized)
		}
		if live.IsMember(actor.UID) {
			return errAlreadyMember
		}
		return nil
	})
	if err != nil && err != errAlreadyMember {
		slog.Warn("Join failed", "group_id", g.ID, "actor", actor.UID, "error", err)
		return nil, err
	}

	slog.Info("Join ok", "group_id", g.ID, "actor", actor.UID, "already_member", err == errAlreadyMember)
	return s.Load(ctx, g.ID)
}

// Leave removes uid from the group. Fails if uid is not a member. The owner
// cannot leave; ownership transfer is not a thing groups do.
func (s *GroupService) Leave(ctx context.Context, groupID, uid string) error {
	slog.Info("Leave request", "group_id", groupID, "uid", uid)

	err := s.store.Mutate(ctx, GroupPath(groupID), func(cur docstore.Snapshot) (docstore.Fields, error) {
		g, err := groupFromSnapshot(cur)
		if err != nil {
			return nil, err
		}
		if !g.IsMember(uid) {
			return nil, fmt.Errorf("uid %q is not a member of group %q: %w", uid, groupID, ErrNotFound)
		}
		if uid == g.OwnerUID {
			return nil, fmt.Errorf("the owner cannot leave the group: %w", ErrForbidden)
		}
		return removalFields(g, uid), nil
	})
	if err != nil {
		slog.Warn("Leave failed", "group_id", groupID, "uid", uid, "error", err)
		return err
	}

	slog.Info("Member left", "group_id", groupID, "uid", uid)
	return nil
}

// RemoveMember removes targetUID on behalf of an admin. The owner can never
// be removed. Admins may remove other admins; only the owner is protected.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorUID, targetUID string) error {
	slog.Info("RemoveMember request", "group_id", groupID, "actor", actorUID, "target", targetUID)

	err := s.store.Mutate(ctx, GroupPath(groupID), func(cur docstore.Snapshot) (docstore.Fields, error) {
		g, err := groupFromSnapshot(cur)
		if err != nil {
			return nil, err
		}
		if !g.IsAdmin(actorUID) {
			return nil, fmt.Errorf("only admins can remove members: %w", ErrForbidden)
		}
		if targetUID == g.OwnerUID {
			return nil, fmt.Errorf("the owner cannot be removed: %w", ErrForbidden)
		}
		if !g.IsMember(targetUID) {
			return nil, fmt.Errorf("uid %q is not a member of group %q: %w", targetUID, groupID, ErrNotFound)
		}
		return removalFields(g, targetUID), nil
	})
	if err != nil {
		slog.Warn("RemoveMember failed", "group_id", groupID, "target", targetUID, "error", err)
		return err
	}

	slog.Info("Member removed", "group_id", groupID, "actor", actorUID, "target", targetUID)
	return nil
}

// removalFields builds the atomic update dropping uid from the member list,
// the UID index, and the admin set, keeping all three consistent.
func removalFields(g *models.Group, uid string) docstore.Fields {
	next := slices.DeleteFunc(slices.Clone(g.Users), func(m models.Member) bool {
		return m.UID == uid
	})
	return docstore.Fields{
		"users":     next,
		"userUids":  docstore.ArrayRemove(uid),
		"admins":    docstore.ArrayRemove(uid),
		"updatedAt": docstore.ServerTimestamp(),
	}
}

// Rename changes the group display name. Admin-only; the document ID never
// changes.
func (s *GroupService) Rename(ctx context.Context, groupID, actorUID, name string) error {
	if name == "" {
		return fmt.Errorf("group name is required: %w", ErrValidation)
	}

	err := s.store.Mutate(ctx, GroupPath(groupID), func(cur docstore.Snapshot) (docstore.Fields, error) {
		g, err := groupFromSnapshot(cur)
		if err != nil {
			return nil, err
		}
		if !g.IsAdmin(actorUID) {
			return nil, fmt.Errorf("only admins can rename the group: %w", ErrForbidden)
		}
		return docstore.Fields{"name": name, "updatedAt": docstore.ServerTimestamp()}, nil
	})
	if err != nil {
		return err
	}
	slog.Info("Group renamed", "group_id", groupID, "name", name)
	return nil
}

// SetJoinKey changes the slug members type to join. Admin-only. Uniqueness
// is re-checked against all groups at write time, but the check is
// read-then-write: two simultaneous changes to the same key can both land.
// Known hazard, documented rather than fixed.
func (s *GroupService) SetJoinKey(ctx context.Context, groupID, actorUID, raw string) (string, error) {
	key := slug.Make(raw)
	if key == "" {
		return "", fmt.Errorf("join key is required: %w", ErrValidation)
	}

	g, err := s.Load(ctx, groupID)
	if err != nil {
		return "", err
	}
	if !g.IsAdmin(actorUID) {
		return "", fmt.Errorf("only admins can change the join key: %w", ErrForbidden)
	}
	if key == g.JoinKey {
		return key, nil
	}

	taken, err := s.store.GetAll(ctx, docstore.Query{
		Collection: "groups",
		Filter:     &docstore.Filter{Field: "joinKey", Op: "==", Value: key},
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to check join key: %w", err)
	}
	if len(taken) > 0 && taken[0].ID() != groupID {
		return "", fmt.Errorf("join key %q: %w", key, ErrConflict)
	}

	err = s.store.Update(ctx, GroupPath(groupID), docstore.Fields{
		"joinKey":   key,
		"updatedAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		return "", err
	}
	slog.Info("Join key changed", "group_id", groupID, "join_key", key)
	return key, nil
}

// Delete soft-deletes the group by setting the tombstone. Admin-only.
// Clients watching the group observe the transition and redirect away; the
// document itself is never removed.
func (s *GroupService) Delete(ctx context.Context, groupID, actorUID string) error {
	err := s.store.Mutate(ctx, GroupPath(groupID), func(cur docstore.Snapshot) (docstore.Fields, error) {
		g, err := groupFromSnapshot(cur)
		if err != nil {
			return nil, err
		}
		if !g.IsAdmin(actorUID) {
			return nil, fmt.Errorf("only admins can delete the group: %w", ErrForbidden)
		}
		if g.Deleted() {
			return nil, fmt.Errorf("group %q: %w", groupID, ErrGroupDeleted)
		}
		return docstore.Fields{"deletedAt": docstore.ServerTimestamp()}, nil
	})
	if err != nil {
		slog.Warn("Delete failed", "group_id", groupID, "actor", actorUID, "error", err)
		return err
	}
	slog.Info("Group deleted", "group_id", groupID, "actor", actorUID)
	return nil
}

// GroupsFor returns every live group uid belongs to.
func (s *GroupService) GroupsFor(ctx context.Context, uid string) ([]models.Group, error) {
	snaps, err := s.store.GetAll(ctx, docstore.Query{
		Collection: "groups",
		Filter:     &docstore.Filter{Field: "userUids", Op: "array-contains", Value: uid},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for %s: %w", uid, err)
	}

	groups := make([]models.Group, 0, len(snaps))
	for _, snap := range snaps {
		g, err := groupFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		if g.Deleted() {
			continue
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// groupFromSnapshot decodes a group document, attaching the document ID.
func groupFromSnapshot(snap docstore.Snapshot) (*models.Group, error) {
	if !snap.Exists {
		return nil, fmt.Errorf("group %q: %w", snap.ID(), ErrNotFound)
	}
	var g models.Group
	if err := snap.DataTo(&g); err != nil {
		return nil, fmt.Errorf("failed to decode group: %w", err)
	}
	g.ID = snap.ID()
	return &g, nil
}
