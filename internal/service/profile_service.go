package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/models"
)

// ProfileService owns the users/{uid} profile documents and the fan-out
// that keeps member snapshots inside groups roughly in step with them.
type ProfileService struct {
	store docstore.Store
}

// NewProfileService creates a new ProfileService with the given storage backend.
func NewProfileService(store docstore.Store) *ProfileService {
	return &ProfileService{store: store}
}

// ProfilePath returns the document path of a user profile.
func ProfilePath(uid string) string {
	return "users/" + uid
}

// Get fetches a profile once.
func (s *ProfileService) Get(ctx context.Context, uid string) (*models.Profile, error) {
	snap, err := s.store.Get(ctx, ProfilePath(uid))
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", uid, ErrNotFound)
	}
	return profileFromSnapshot(snap)
}

// Ensure seeds a profile document for uid if none exists yet; profiles are
// created lazily at signup or on first profile view. An existing profile is
// returned untouched.
func (s *ProfileService) Ensure(ctx context.Context, uid, displayName, email, photoURL string) (*models.Profile, error) {
	if p, err := s.Get(ctx, uid); err == nil {
		return p, nil
	}

	username := models.FallbackUsername(displayName, email)
	err := s.store.Set(ctx, ProfilePath(uid), docstore.Fields{
		"uid":         uid,
		"username":    username,
		"displayName": displayName,
		"photoURL":    photoURL,
		"email":       email,
		"bio":         "",
		"createdAt":   docstore.ServerTimestamp(),
		"updatedAt":   docstore.ServerTimestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed profile: %w", err)
	}
	slog.Info("Profile seeded", "uid", uid, "username", username)
	return s.Get(ctx, uid)
}

// Update patches the actor's own profile. Editing someone else's profile is
// Forbidden. Changes to member-snapshot fields fan out to every group the
// user belongs to; the profile write itself succeeds even if the fan-out
// partially fails.
func (s *ProfileService) Update(ctx context.Context, actorUID, uid string, patch models.ProfilePatch) (*models.Profile, error) {
	if actorUID != uid {
		return nil, fmt.Errorf("profiles are editable only by their owner: %w", ErrForbidden)
	}
	if patch.IsZero() {
		return nil, fmt.Errorf("nothing to update: %w", ErrValidation)
	}
	if patch.DisplayName != nil && *patch.DisplayName == "" {
		return nil, fmt.Errorf("display name cannot be empty: %w", ErrValidation)
	}

	fields := docstore.Fields{"updatedAt": docstore.ServerTimestamp()}
	if patch.Username != nil {
		fields["username"] = *patch.Username
	}
	if patch.DisplayName != nil {
		fields["displayName"] = *patch.DisplayName
	}
	if patch.PhotoURL != nil {
		fields["photoURL"] = *patch.PhotoURL
	}
	if patch.Bio != nil {
		fields["bio"] = *patch.Bio
	}

	if err := s.store.Update(ctx, ProfilePath(uid), fields); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	slog.Info("Profile updated", "uid", uid)

	p, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	// Bio lives only on the profile; snapshots carry the rest.
	snapshotPatch := patch
	snapshotPatch.Bio = nil
	if !snapshotPatch.IsZero() {
		if err := s.PropagateToGroups(ctx, uid, snapshotPatch); err != nil {
			return p, err
		}
	}
	return p, nil
}

// PropagateToGroups rewrites the member snapshot for uid in every group it
// belongs to with the patched fields, leaving other members untouched. The
// fan-out is sequential and non-atomic across groups: a failure partway
// leaves earlier groups updated and later ones stale. Failures are
// aggregated, logged, and surfaced.
func (s *ProfileService) PropagateToGroups(ctx context.Context, uid string, patch models.ProfilePatch) error {
	snaps, err := s.store.GetAll(ctx, docstore.Query{
		Collection: "groups",
		Filter:     &docstore.Filter{Field: "userUids", Op: "array-contains", Value: uid},
	})
	if err != nil {
		return fmt.Errorf("failed to find groups for %s: %w", uid, err)
	}

	var errs *multierror.Error
	for _, snap := range snaps {
		groupID := snap.ID()
		err := s.store.Mutate(ctx, snap.Path, func(cur docstore.Snapshot) (docstore.Fields, error) {
			g, err := groupFromSnapshot(cur)
			if err != nil {
				return nil, err
			}
			next := make([]models.Member, len(g.Users))
			for i, m := range g.Users {
				if m.UID == uid {
					m = patchMember(m, patch)
				}
				next[i] = m
			}
			return docstore.Fields{"users": next, "updatedAt": docstore.ServerTimestamp()}, nil
		})
		if err != nil {
			slog.Error("Profile fan-out failed for group", "uid", uid, "group_id", groupID, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("group %s: %w", groupID, err))
			continue
		}
		slog.Debug("Profile fan-out applied", "uid", uid, "group_id", groupID)
	}
	return errs.ErrorOrNil()
}

// WatchGroups streams the set of live groups uid belongs to.
func (s *ProfileService) WatchGroups(ctx context.Context, uid string, fn func([]models.Group)) (docstore.CancelFunc, error) {
	return s.store.SubscribeQuery(ctx, docstore.Query{
		Collection: "groups",
		Filter:     &docstore.Filter{Field: "userUids", Op: "array-contains", Value: uid},
	}, func(snaps []docstore.Snapshot) {
		groups := make([]models.Group, 0, len(snaps))
		for _, snap := range snaps {
			g, err := groupFromSnapshot(snap)
			if err != nil || g.Deleted() {
				continue
			}
			groups = append(groups, *g)
		}
		fn(groups)
	})
}

// Watch streams a single profile document.
func (s *ProfileService) Watch(ctx context.Context, uid string, fn func(*models.Profile)) (docstore.CancelFunc, error) {
	return s.store.Subscribe(ctx, ProfilePath(uid), func(snap docstore.Snapshot) {
		if !snap.Exists {
			fn(nil)
			return
		}
		p, err := profileFromSnapshot(snap)
		if err != nil {
			slog.Error("Failed to decode profile update", "uid", uid, "error", err)
			return
		}
		fn(p)
	})
}

func patchMember(m models.Member, patch models.ProfilePatch) models.Member {
	if patch.Username != nil {
		m.Username = *patch.Username
	}
	if patch.DisplayName != nil {
		m.DisplayName = *patch.DisplayName
	}
	if patch.PhotoURL != nil {
		m.PhotoURL = *patch.PhotoURL
	}
	return m
}

func profileFromSnapshot(snap docstore.Snapshot) (*models.Profile, error) {
	var p models.Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if p.UID == "" {
		p.UID = snap.ID()
	}
	return &p, nil
}
