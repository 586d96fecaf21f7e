package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account represents a registered login, owned by the identity provider.
// It is separate from Profile so credential data never travels with the
// public profile document.
type Account struct {
	// UID is the unique identifier for the user (UUID format).
	UID string `json:"uid"`

	// Email is the login email address (unique).
	Email string `json:"email"`

	// DisplayName is the name chosen at signup.
	DisplayName string `json:"displayName"`

	// PasswordHash is the bcrypt hash of the login password.
	PasswordHash string `json:"passwordHash"`

	// CreatedAt is the Unix millisecond timestamp of account creation.
	CreatedAt int64 `json:"createdAt"`
}

// NewAccount creates an account with a fresh UID and creation timestamp.
func NewAccount(email, displayName, passwordHash string) *Account {
	return &Account{
		UID:          uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UnixMilli(),
	}
}

// Profile is a user's public profile document (users/{uid}).
// Mutable only by its owner; group member snapshots are copied from it.
type Profile struct {
	UID         string `json:"uid"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Email       string `json:"email,omitempty"`
	Bio         string `json:"bio,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`
}

// ProfilePatch is the set of profile fields a user may edit.
// Nil pointers mean "leave unchanged".
type ProfilePatch struct {
	Username    *string `json:"username,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
	Bio         *string `json:"bio,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p ProfilePatch) IsZero() bool {
	return p.Username == nil && p.DisplayName == nil && p.PhotoURL == nil && p.Bio == nil
}

// FallbackUsername derives a username when none was chosen:
// display name first, then the email local part.
func FallbackUsername(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return "user"
}

// DisplayLabel picks the best human-readable name for rendering.
func (p *Profile) DisplayLabel() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	default:
		return FallbackUsername("", p.Email)
	}
}
