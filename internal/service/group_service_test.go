package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/docstore/sqlite"
	"github.com/pantrio/pantrio/internal/models"
)

func newTestStore(t *testing.T) docstore.Store {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "pantrio-service-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testProfile(uid, name string) *models.Profile {
	return &models.Profile{
		UID:         uid,
		Username:    uid,
		DisplayName: name,
		Email:       uid + "@example.com",
	}
}

// checkMembershipInvariant asserts the denormalized uid index matches the
// member list and that every admin is still a member.
func checkMembershipInvariant(t *testing.T, g *models.Group) {
	t.Helper()

	fromUsers := map[string]bool{}
	for _, m := range g.Users {
		fromUsers[m.UID] = true
	}
	if len(fromUsers) != len(g.UserUIDs) {
		t.Fatalf("userUids has %d entries, users has %d", len(g.UserUIDs), len(fromUsers))
	}
	for _, uid := range g.UserUIDs {
		if !fromUsers[uid] {
			t.Errorf("uid %q in userUids but not in users", uid)
		}
	}
	for _, uid := range g.Admins {
		if !fromUsers[uid] {
			t.Errorf("admin %q is not a member", uid)
		}
	}
}

func TestCreateGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewGroupService(store)
	alice := testProfile("alice", "Alice")

	t.Run("creator becomes owner and first member", func(t *testing.T) {
		g, err := svc.Create(ctx, alice, "Weekend House", "hunter2")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if g.ID != "weekend-house" {
			t.Errorf("ID = %q, want weekend-house", g.ID)
		}
		if g.JoinKey != "weekend-house" {
			t.Errorf("JoinKey = %q, want the group id", g.JoinKey)
		}
		if g.OwnerUID != "alice" || !g.IsAdmin("alice") || !g.IsMember("alice") {
			t.Errorf("owner state wrong: %+v", g)
		}
		if g.CreatedAt == 0 || g.UpdatedAt == 0 {
			t.Error("timestamps not assigned")
		}
		checkMembershipInvariant(t, g)
	})

	t.Run("name collision is a conflict", func(t *testing.T) {
		_, err := svc.Create(ctx, alice, "Weekend  House!", "other")
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Create = %v, want ErrConflict", err)
		}
	})

	t.Run("name and password are required", func(t *testing.T) {
		if _, err := svc.Create(ctx, alice, "", "pw"); !errors.Is(err, ErrValidation) {
			t.Errorf("empty name: %v, want ErrValidation", err)
		}
		if _, err := svc.Create(ctx, alice, "Flat", ""); !errors.Is(err, ErrValidation) {
			t.Errorf("empty password: %v, want ErrValidation", err)
		}
	})
}

func TestJoin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewGroupService(store)
	alice := testProfile("alice", "Alice")
	bob := testProfile("bob", "Bob")

	g, err := svc.Create(ctx, alice, "Flat 4b", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		_, err := svc.Join(ctx, bob, g.JoinKey, "nope")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Join = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown join key is not found", func(t *testing.T) {
		_, err := svc.Join(ctx, bob, "no-such-key", "pw")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Join = %v, want ErrNotFound", err)
		}
	})

	t.Run("join appends member and index entry", func(t *testing.T) {
		got, err := svc.Join(ctx, bob, g.JoinKey, "pw")
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		if len(got.Users) != 2 || !got.IsMember("bob") {
			t.Fatalf("users = %+v, want alice and bob", got.Users)
		}
		if got.Users[1].DisplayName != "Bob" || got.Users[1].JoinedAt == 0 {
			t.Errorf("member snapshot = %+v", got.Users[1])
		}
		checkMembershipInvariant(t, got)
	})

	t.Run("joining again is a no-op", func(t *testing.T) {
		got, err := svc.Join(ctx, bob, g.JoinKey, "pw")
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		if len(got.Users) != 2 || len(got.UserUIDs) != 2 {
			t.Errorf("repeat join mutated the group: %+v", got)
		}
	})

	t.Run("deleted group refuses joins", func(t *testing.T) {
		if err := svc.Delete(ctx, g.ID, "alice"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		_, err := svc.Join(ctx, testProfile("carol", "Carol"), g.JoinKey, "pw")
		if !errors.Is(err, ErrGroupDeleted) {
			t.Errorf("Join = %v, want ErrGroupDeleted", err)
		}
	})
}

func TestLeave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewGroupService(store)

	g, err := svc.Create(ctx, testProfile("alice", "Alice"), "Cabin", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Join(ctx, testProfile("bob", "Bob"), g.JoinKey, "pw"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	t.Run("non-member cannot leave and nothing changes", func(t *testing.T) {
		if err := svc.Leave(ctx, g.ID, "mallory"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Leave = %v, want ErrNotFound", err)
		}
		got, _ := svc.Load(ctx, g.ID)
		if len(got.Users) != 2 {
			t.Errorf("users = %d, want unchanged 2", len(got.Users))
		}
	})

	t.Run("owner cannot leave", func(t *testing.T) {
		if err := svc.Leave(ctx, g.ID, "alice"); !errors.Is(err, ErrForbidden) {
			t.Errorf("Leave = %v, want ErrForbidden", err)
		}
	})

	t.Run("member leaves cleanly", func(t *testing.T) {
		if err := svc.Leave(ctx, g.ID, "bob"); err != nil {
			t.Fatalf("Leave failed: %v", err)
		}
		got, _ := svc.Load(ctx, g.ID)
		if got.IsMember("bob") || len(got.Users) != 1 {
			t.Errorf("bob still present: %+v", got.Users)
		}
		checkMembershipInvariant(t, got)
	})
}

func TestRemoveMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewGroupService(store)

	g, err := svc.Create(ctx, testProfile("alice", "Alice"), "Shared Loft", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, uid := range []string{"bob", "carol"} {
		if _, err := svc.Join(ctx, testProfile(uid, uid), g.JoinKey, "pw"); err != nil {
			t.Fatalf("Join %s failed: %v", uid, err)
		}
	}

	t.Run("non-admin actor is forbidden and nothing changes", func(t *testing.T) {
		if err := svc.RemoveMember(ctx, g.ID, "bob", "carol"); !errors.Is(err, ErrForbidden) {
			t.Errorf("RemoveMember = %v, want ErrForbidden", err)
		}
		got, _ := svc.Load(ctx, g.ID)
		if len(got.Users) != 3 {
			t.Errorf("users = %d, want unchanged 3", len(got.Users))
		}
	})

	t.Run("owner cannot be removed", func(t *testing.T) {
		if err := svc.RemoveMember(ctx, g.ID, "alice", "alice"); !errors.Is(err, ErrForbidden) {
			t.Errorf("RemoveMember = %v, want ErrForbidden", err)
		}
	})

	t.Run("missing target is not found", func(t *testing.T) {
		if err := svc.RemoveMember(ctx, g.ID, "alice", "mallory"); !errors.Is(err, ErrNotFound) {
			t.Errorf("RemoveMember = %v, want ErrNotFound", err)
		}
	})

	t.Run("admin removes a member", func(t *testing.T) {
		if err := svc.RemoveMember(ctx, g.ID, "alice", "bob"); err != nil {
			t.Fatalf("RemoveMember failed: %v", err)
		}
		got, _ := svc.Load(ctx, g.ID)
		if got.IsMember("bob") {
			t.Error("bob still a member")
		}
		checkMembershipInvariant(t, got)
	})
}

func TestRenameAndJoinKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewGroupService(store)

	g, err := svc.Create(ctx, testProfile("alice", "Alice"), "Old Name", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	other, err := svc.Create(ctx, testProfile("dan", "Dan"), "Other Group", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("rename is admin-only", func(t *testing.T) {
		if err := svc.Rename(ctx, g.ID, "mallory", "Hijacked"); !errors.Is(err, ErrForbidden) {
			t.Errorf("Rename = %v, want ErrForbidden", err)
		}
	})

	t.Run("rename keeps the document id", func(t *testing.T) {
		if err := svc.Rename(ctx, g.ID, "alice", "New Name"); err != nil {
			t.Fatalf("Rename failed: %v", err)
		}
		got, _ := svc.Load(ctx, g.ID)
		if got.Name != "New Name" || got.ID != "old-name" {
			t.Errorf("got name %q id %q", got.Name, got.ID)
		}
	})

	t.Run("join key collision is a conflict", func(t *testing.T) {
		_, err := svc.SetJoinKey(ctx, g.ID, "alice", other.JoinKey)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("SetJoinKey = %v, want ErrConflict", err)
		}
	})

	t.Run("new join key resolves to the group", func(t *testing.T) {
		key, err := svc.SetJoinKey(ctx, g.ID, "alice", "Our Secret Door")
		if err != nil {
			t.Fatalf("SetJoinKey failed: %v", err)
		}
		if key != "our-secret-door" {
			t.Errorf("key = %q, want our-secret-door", key)
		}
		got, err := svc.Resolve(ctx, "Our Secret Door")
		if err != nil || got.ID != g.ID {
			t.Errorf("Resolve = %v, %v; want group %q", got, err, g.ID)
		}
	})
}

func TestDeleteAndGroupsFor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := NewGroupService(store)
	alice := testProfile("alice", "Alice")

	keep, err := svc.Create(ctx, alice, "Keeper", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	gone, err := svc.Create(ctx, alice, "Doomed", "pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("delete is admin-only", func(t *testing.T) {
		if err := svc.Delete(ctx, gone.ID, "mallory"); !errors.Is(err, ErrForbidden) {
			t.Errorf("Delete = %v, want ErrForbidden", err)
		}
	})

	t.Run("delete sets the tombstone", func(t *testing.T) {
		if err := svc.Delete(ctx, gone.ID, "alice"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, err := svc.Load(ctx, gone.ID)
		if err != nil {
			t.Fatalf("tombstoned group should still load: %v", err)
		}
		if !got.Deleted() {
			t.Error("Deleted() = false after delete")
		}
	})

	t.Run("double delete reports the tombstone", func(t *testing.T) {
		if err := svc.Delete(ctx, gone.ID, "alice"); !errors.Is(err, ErrGroupDeleted) {
			t.Errorf("Delete = %v, want ErrGroupDeleted", err)
		}
	})

	t.Run("listing skips deleted groups", func(t *testing.T) {
		groups, err := svc.GroupsFor(ctx, "alice")
		if err != nil {
			t.Fatalf("GroupsFor failed: %v", err)
		}
		if len(groups) != 1 || groups[0].ID != keep.ID {
			t.Errorf("GroupsFor = %+v, want only %q", groups, keep.ID)
		}
	})
}
