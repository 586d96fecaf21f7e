package models

import "slices"

// Group represents a shared pantry group document (groups/{groupId}).
//
// The document ID is the slug of the name the group was created with; the
// join key starts out identical but admins may change it later.
type Group struct {
	// ID is the document ID (slug form, immutable).
	ID string `json:"-"`

	// Name is the display name of the group (e.g., "Maple House").
	Name string `json:"name"`

	// JoinKey is the unique, human-typed slug members use to join.
	JoinKey string `json:"joinKey"`

	// Password is the shared join password. Stored in plaintext, which is a
	// known weakness carried over from the data this service inherits.
	Password string `json:"password"`

	// OwnerUID is the creator's UID. The owner is always an admin and can
	// never be removed from the group.
	OwnerUID string `json:"ownerUid"`

	// Admins lists additional UIDs with admin authority.
	Admins []string `json:"admins,omitempty"`

	// Users is the ordered member list (join order), each a profile snapshot
	// taken at join time.
	Users []Member `json:"users"`

	// UserUIDs mirrors Users[].UID for membership queries. Every membership
	// mutation must keep the two in sync.
	UserUIDs []string `json:"userUids"`

	// Pantry maps item key (slug of item name) to the tracked item.
	Pantry map[string]PantryItem `json:"pantry,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
	UpdatedAt int64 `json:"updatedAt,omitempty"`

	// DeletedAt is the soft-delete tombstone; zero means the group is live.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// Member is a denormalized copy of a user's profile embedded in a group's
// member list at join time. It goes stale on purpose; live profile data is
// overlaid at read time.
type Member struct {
	UID         string `json:"uid"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Email       string `json:"email,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
}

// NewMember snapshots a profile into a member entry.
func NewMember(p *Profile, joinedAt int64) Member {
	return Member{
		UID:         p.UID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Email:       p.Email,
		JoinedAt:    joinedAt,
	}
}

// IsAdmin reports whether uid holds admin authority: the owner, or any UID
// in the admin set. Pure; callers recompute it on every group update.
func (g *Group) IsAdmin(uid string) bool {
	if uid == "" {
		return false
	}
	return uid == g.OwnerUID || slices.Contains(g.Admins, uid)
}

// IsMember reports whether uid appears in the member list.
func (g *Group) IsMember(uid string) bool {
	return uid != "" && slices.Contains(g.UserUIDs, uid)
}

// Deleted reports whether the soft-delete tombstone is set.
func (g *Group) Deleted() bool {
	return g.DeletedAt != 0
}

// MemberUIDs returns the UID set derived from the member list itself,
// independent of the denormalized index.
func (g *Group) MemberUIDs() []string {
	uids := make([]string, 0, len(g.Users))
	for _, m := range g.Users {
		uids = append(uids, m.UID)
	}
	return uids
}
