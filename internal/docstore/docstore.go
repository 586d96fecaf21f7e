// Package docstore provides abstractions for the JSON document store that
// backs all persistent state.
//
// Documents live at slash-separated paths alternating collection and
// document ID ("users/u1", "groups/g1/chat/m1"). Partial updates address
// fields with dotted paths and may use the ArrayUnion, ArrayRemove, Delete
// and ServerTimestamp operators. Writes to a single document are atomic.
//
// Subscriptions deliver a Snapshot on every change to a document (or to the
// result set of a query). A subscriber sees writes made by its own origin
// session first, flagged HasPendingWrites, ahead of the committed broadcast,
// mirroring the latency compensation of hosted document stores. This
// abstraction allows swapping storage backends without changing the service
// layer.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a document does not exist at the given path.
var ErrNotFound = errors.New("document not found")

// Fields is a set of field writes. Keys may be dotted paths
// ("pantry.oat-milk.amount"); values may be plain Go values or the operator
// values returned by ArrayUnion, ArrayRemove, Delete and ServerTimestamp.
type Fields map[string]any

// Snapshot is the observed state of a document at a point in time.
type Snapshot struct {
	// Path is the full document path.
	Path string

	// Exists is false when the document is absent (or was deleted).
	Exists bool

	// HasPendingWrites is true when this snapshot reflects a local write by
	// the subscriber's own origin session that has not committed yet.
	HasPendingWrites bool

	// Data is the document body. Nil when Exists is false.
	Data map[string]any
}

// ID returns the document ID segment of the snapshot path.
func (s Snapshot) ID() string {
	if i := strings.LastIndexByte(s.Path, '/'); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// DataTo unmarshals the snapshot body into v via JSON.
func (s Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("decode %s: %w", s.Path, ErrNotFound)
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	return nil
}

// Filter narrows a query to documents matching one field condition.
type Filter struct {
	Field string
	Op    string // "==" or "array-contains"
	Value any
}

// Query selects documents from one collection.
type Query struct {
	// Collection is the collection path ("groups", "groups/g1/chat").
	Collection string

	// Filter is optional.
	Filter *Filter

	// OrderBy names a top-level field to sort ascending by. Optional.
	OrderBy string

	// Limit caps the result count when > 0.
	Limit int
}

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the document store consumed by the service layer.
type Store interface {
	// Get fetches a single document. Returns ErrNotFound if absent.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set creates or replaces the document at path.
	Set(ctx context.Context, path string, fields Fields) error

	// Update applies a partial update to an existing document.
	// Returns ErrNotFound if the document is absent.
	Update(ctx context.Context, path string, fields Fields) error

	// UpdateIf applies a partial update only if pre, evaluated against the
	// current document inside the write transaction, returns nil. The error
	// from pre is returned unchanged, so callers can use their own
	// sentinels as preconditions.
	UpdateIf(ctx context.Context, path string, fields Fields, pre func(Snapshot) error) error

	// Mutate derives a partial update from the current document inside the
	// write transaction and applies it atomically. An error from fn aborts
	// the write and is returned unchanged. Returns ErrNotFound if the
	// document is absent.
	Mutate(ctx context.Context, path string, fn func(Snapshot) (Fields, error)) error

	// Append adds a new document with a generated ID to a collection and
	// returns the ID. Append-only collections are never updated in place.
	Append(ctx context.Context, collection string, fields Fields) (string, error)

	// GetAll runs a query once.
	GetAll(ctx context.Context, q Query) ([]Snapshot, error)

	// Subscribe watches a single document. The callback runs synchronously
	// on the writer's goroutine and must not block; it may read from the
	// store but must not write. The subscription origin is taken from ctx
	// (see WithOrigin).
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (CancelFunc, error)

	// SubscribeQuery watches a query's result set. Snapshots delivered
	// through query subscriptions are always committed state.
	SubscribeQuery(ctx context.Context, q Query, fn func([]Snapshot)) (CancelFunc, error)

	// Close releases any resources held by the store.
	Close() error
}

type originKey struct{}

// WithOrigin tags ctx with a client session identifier. Writes carrying an
// origin are echoed, pre-commit and flagged pending, to subscriptions that
// were opened with the same origin.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom extracts the session origin from ctx, or "".
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// ParentOf returns the collection path containing the document at path.
func ParentOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

// ValidateDocPath checks that path names a document: a non-empty, even
// number of non-empty slash-separated segments.
func ValidateDocPath(path string) error {
	segs := strings.Split(path, "/")
	if len(segs) == 0 || len(segs)%2 != 0 {
		return fmt.Errorf("not a document path: %q", path)
	}
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("empty segment in path: %q", path)
		}
	}
	return nil
}
