package service

import "errors"

// Error taxonomy shared by every service. Handlers map these to HTTP status
// codes with errors.Is; services add context with fmt.Errorf("%w") wrapping.
var (
	// ErrNotFound: the group, profile, or pantry item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrGroupDeleted: the group exists but carries a deletion tombstone.
	ErrGroupDeleted = errors.New("group has been deleted")

	// ErrUnauthorized: bad group password or missing sign-in.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden: an action reserved for admins (or the profile owner)
	// attempted by someone else.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict: a unique key (group ID, join key) is already taken.
	ErrConflict = errors.New("already taken")

	// ErrValidation: empty names, negative amounts, oversized messages.
	ErrValidation = errors.New("invalid input")

	// errAlreadyMember aborts a join for a uid that is already in the
	// member list. Swallowed by Join; joining twice is a no-op, not an
	// error.
	errAlreadyMember = errors.New("already a member")
)
