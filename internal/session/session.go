// Package session holds per-view live state: one GroupSession per open
// group view, fed by document subscriptions. Admin flags, profile
// overlays, and per-member listeners live in one explicit object owned
// by the view and rebuilt on every auth or group change.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/models"
	"github.com/pantrio/pantrio/internal/pantry"
	"github.com/pantrio/pantrio/internal/service"
)

// GoneReason says why a group view must be abandoned.
type GoneReason string

const (
	// GoneDeleted: the group's deletion tombstone was observed.
	GoneDeleted GoneReason = "deleted"

	// GoneRemoved: the viewer is no longer in the member list.
	GoneRemoved GoneReason = "removed"
)

// GroupView is the render model pushed on every group change. It never
// carries the group password.
type GroupView struct {
	ID           string                      `json:"id"`
	Name         string                      `json:"name"`
	JoinKey      string                      `json:"joinKey"`
	OwnerUID     string                      `json:"ownerUid"`
	IsAdmin      bool                        `json:"isAdmin"`
	IsMember     bool                        `json:"isMember"`
	Pantry       map[string]models.PantryItem `json:"pantry"`
	ShoppingList []pantry.ShoppingEntry      `json:"shoppingList"`
	CreatedAt    int64                       `json:"createdAt,omitempty"`
	UpdatedAt    int64                       `json:"updatedAt,omitempty"`
}

// MemberView is a member snapshot with live profile fields overlaid.
type MemberView struct {
	UID         string `json:"uid"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Email       string `json:"email,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
	IsOwner     bool   `json:"isOwner"`
	IsAdmin     bool   `json:"isAdmin"`
}

// Callbacks receive session output. They run on the store's notification
// path: quick, non-blocking, and never writing back into the store.
type Callbacks struct {
	// OnGroup fires with the refreshed group view after every group change.
	OnGroup func(GroupView)

	// OnMembers fires with the overlay-merged member list whenever the
	// member set or any member's live profile changes.
	OnMembers func([]MemberView)

	// OnGone fires exactly once when the view must redirect away.
	OnGone func(GoneReason)
}

// GroupSession derives consistent membership and admin state for one viewer
// from a live, externally-mutated group record.
//
// Tombstone and removal transitions are ignored while the snapshot carries
// the viewer's own pending local write; only committed state may end the
// session.
type GroupSession struct {
	store   docstore.Store
	groupID string
	viewer  string
	cb      Callbacks

	mu       sync.Mutex
	group    *models.Group
	isAdmin  bool
	gone     bool
	overlays map[string]*models.Profile

	registry    *Registry
	cancelGroup docstore.CancelFunc
}

// Open loads the group and starts watching it plus every member's profile.
// The initial state is delivered through the callbacks before Open returns.
// Fails with NotFound when the group does not exist.
func Open(ctx context.Context, store docstore.Store, groupID, viewerUID string, cb Callbacks) (*GroupSession, error) {
	if _, err := store.Get(ctx, service.GroupPath(groupID)); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("group %q: %w", groupID, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load group %q: %w", groupID, err)
	}

	s := &GroupSession{
		store:    store,
		groupID:  groupID,
		viewer:   viewerUID,
		cb:       cb,
		overlays: map[string]*models.Profile{},
		registry: NewRegistry(),
	}

	cancel, err := store.Subscribe(ctx, service.GroupPath(groupID), func(snap docstore.Snapshot) {
		s.applyGroupSnapshot(ctx, snap)
	})
	if err != nil {
		return nil, err
	}
	s.cancelGroup = cancel
	return s, nil
}

// Close tears down every subscription the session holds. Idempotent.
func (s *GroupSession) Close() {
	if s.cancelGroup != nil {
		s.cancelGroup()
	}
	s.registry.Close()
}

// Group returns the latest committed group state and the viewer's derived
// admin flag.
func (s *GroupSession) Group() (*models.Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group, s.isAdmin
}

// ActiveOverlays exposes the uids with a live profile subscription.
func (s *GroupSession) ActiveOverlays() []string {
	return s.registry.Active()
}

// applyGroupSnapshot is the heart of the sync logic: recompute derived
// admin/member state, reconcile per-member profile subscriptions against
// the new member set, and detect the two terminal transitions.
func (s *GroupSession) applyGroupSnapshot(ctx context.Context, snap docstore.Snapshot) {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return
	}

	deleted := !snap.Exists
	var g *models.Group
	if snap.Exists {
		decoded, err := decodeGroup(snap)
		if err != nil {
			s.mu.Unlock()
			slog.Error("Failed to decode group update", "group_id", s.groupID, "error", err)
			return
		}
		g = decoded
		deleted = g.Deleted()
	}

	if deleted {
		// A tombstone observed under our own in-flight write is transient;
		// only committed deletions end the session.
		if snap.HasPendingWrites {
			s.mu.Unlock()
			return
		}
		s.gone = true
		s.mu.Unlock()
		s.teardownAndNotify(GoneDeleted)
		return
	}

	if !snap.HasPendingWrites && s.viewer != "" && !g.IsMember(s.viewer) && s.viewer != g.OwnerUID {
		s.gone = true
		s.mu.Unlock()
		s.teardownAndNotify(GoneRemoved)
		return
	}

	s.group = g
	s.isAdmin = g.IsAdmin(s.viewer)
	uids := g.MemberUIDs()
	s.mu.Unlock()

	// Outside the state lock: starting a subscription delivers its initial
	// profile snapshot synchronously, which takes the lock again.
	s.registry.Reconcile(uids, func(uid string) (docstore.CancelFunc, error) {
		return s.store.Subscribe(ctx, service.ProfilePath(uid), func(psnap docstore.Snapshot) {
			s.applyProfileSnapshot(uid, psnap)
		})
	})
	s.pruneOverlays(uids)

	if s.cb.OnGroup != nil {
		s.cb.OnGroup(s.groupView())
	}
	if s.cb.OnMembers != nil {
		s.cb.OnMembers(s.MemberViews())
	}
}

// applyProfileSnapshot merges a live profile change over the stale member
// snapshot for rendering. The snapshot in the group document itself is not
// touched here; that is the profile fan-out's job.
func (s *GroupSession) applyProfileSnapshot(uid string, snap docstore.Snapshot) {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return
	}
	if !snap.Exists {
		delete(s.overlays, uid)
	} else {
		var p models.Profile
		if err := snap.DataTo(&p); err != nil {
			s.mu.Unlock()
			slog.Warn("Failed to decode member profile", "uid", uid, "error", err)
			return
		}
		s.overlays[uid] = &p
	}
	s.mu.Unlock()

	if s.cb.OnMembers != nil {
		s.cb.OnMembers(s.MemberViews())
	}
}

func (s *GroupSession) pruneOverlays(uids []string) {
	keep := make(map[string]bool, len(uids))
	for _, uid := range uids {
		keep[uid] = true
	}
	s.mu.Lock()
	for uid := range s.overlays {
		if !keep[uid] {
			delete(s.overlays, uid)
		}
	}
	s.mu.Unlock()
}

func (s *GroupSession) teardownAndNotify(reason GoneReason) {
	s.registry.Close()
	if s.cb.OnGone != nil {
		s.cb.OnGone(reason)
	}
}

func (s *GroupSession) groupView() GroupView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ViewOf(s.group, s.viewer)
}

// MemberViews returns the member list in join order, each snapshot merged
// with its live profile overlay.
func (s *GroupSession) MemberViews() []MemberView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group == nil {
		return nil
	}
	return MemberViewsOf(s.group, s.overlays)
}

// ViewOf builds the password-free render model of a group as seen by viewer.
func ViewOf(g *models.Group, viewer string) GroupView {
	return GroupView{
		ID:           g.ID,
		Name:         g.Name,
		JoinKey:      g.JoinKey,
		OwnerUID:     g.OwnerUID,
		IsAdmin:      g.IsAdmin(viewer),
		IsMember:     g.IsMember(viewer),
		Pantry:       g.Pantry,
		ShoppingList: pantry.ShoppingList(g.Pantry),
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

// MemberViewsOf merges live profile overlays over the group's member
// snapshots, sorted by join time. A nil overlay map renders the snapshots
// as-is.
func MemberViewsOf(g *models.Group, overlays map[string]*models.Profile) []MemberView {
	views := make([]MemberView, 0, len(g.Users))
	for _, m := range g.Users {
		v := MemberView{
			UID:         m.UID,
			Username:    m.Username,
			DisplayName: m.DisplayName,
			PhotoURL:    m.PhotoURL,
			Email:       m.Email,
			JoinedAt:    m.JoinedAt,
			IsOwner:     m.UID == g.OwnerUID,
			IsAdmin:     g.IsAdmin(m.UID),
		}
		if live, ok := overlays[m.UID]; ok {
			if live.Username != "" {
				v.Username = live.Username
			}
			if live.DisplayName != "" {
				v.DisplayName = live.DisplayName
			}
			if live.PhotoURL != "" {
				v.PhotoURL = live.PhotoURL
			}
			if live.Email != "" {
				v.Email = live.Email
			}
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].JoinedAt < views[j].JoinedAt
	})
	return views
}

func decodeGroup(snap docstore.Snapshot) (*models.Group, error) {
	var g models.Group
	if err := snap.DataTo(&g); err != nil {
		return nil, err
	}
	g.ID = snap.ID()
	return &g, nil
}
