// Package models defines the core domain models for Pantrio.
//
// # Documents
//
// Everything is stored as JSON-like documents in the document store:
//   - Account: login credentials, owned by the identity provider
//   - Profile: a user's public profile (users/{uid})
//   - Group: a shared pantry group with its member list and pantry map
//   - ChatMessage: one entry in a group's append-only chat log
//
// # Design Principles
//
// 1. **Denormalized membership**: Group.UserUIDs mirrors Group.Users so
// membership queries never have to unpack member snapshots.
//
// 2. **Snapshots, not references**: Member embeds a copy of the profile taken
// at join time. Live profile data is layered on top at read time; the snapshot
// itself is only rewritten by the profile fan-out.
//
// 3. **Soft deletes**: groups carry a DeletedAt tombstone and are never
// physically removed.
//
// 4. **Avoid circular references**: use ID strings instead of pointers for
// relationships.
//
// All timestamps are Unix milliseconds assigned by the store.
package models
