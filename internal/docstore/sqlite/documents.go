package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pantrio/pantrio/internal/docstore"
)

// Get fetches a single document.
func (s *Store) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	if err := docstore.ValidateDocPath(path); err != nil {
		return docstore.Snapshot{}, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE path = ?", path,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.Snapshot{Path: path}, fmt.Errorf("%s: %w", path, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to get document %s: %w", path, err)
	}

	doc, err := decodeDoc(raw)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{Path: path, Exists: true, Data: doc}, nil
}

// Set creates or replaces the document at path.
func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields) error {
	return s.write(ctx, path, fields, writeReplace, nil)
}

// Update applies a partial update to an existing document.
func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	return s.write(ctx, path, fields, writeMerge, nil)
}

// UpdateIf applies a partial update guarded by a precondition evaluated
// against the current document inside the write transaction.
func (s *Store) UpdateIf(ctx context.Context, path string, fields docstore.Fields, pre func(docstore.Snapshot) error) error {
	return s.write(ctx, path, fields, writeMerge, pre)
}

// Mutate derives the update from the current document inside the write
// transaction.
func (s *Store) Mutate(ctx context.Context, path string, fn func(docstore.Snapshot) (docstore.Fields, error)) error {
	return s.writeFn(ctx, path, writeMerge, func(cur docstore.Snapshot) (docstore.Fields, error) {
		return fn(cur)
	})
}

// Append adds a new document with a generated ID to a collection.
func (s *Store) Append(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.New().String()
	path := collection + "/" + id
	if err := s.write(ctx, path, fields, writeReplace, nil); err != nil {
		return "", err
	}
	return id, nil
}

type writeMode int

const (
	writeReplace writeMode = iota // create or replace
	writeMerge                    // require existing doc, merge fields
)

func (s *Store) write(ctx context.Context, path string, fields docstore.Fields, mode writeMode, pre func(docstore.Snapshot) error) error {
	return s.writeFn(ctx, path, mode, func(cur docstore.Snapshot) (docstore.Fields, error) {
		if pre != nil {
			if err := pre(cur); err != nil {
				return nil, err
			}
		}
		return fields, nil
	})
}

// writeFn is the single mutation path. It holds writeMu for the whole
// read-modify-write so every document write is atomic and change
// notifications are delivered in commit order. Subscription callbacks run
// under the same lock and therefore must never write back into the store;
// reads are safe because every delivery happens after the transaction has
// committed and released its connection.
func (s *Store) writeFn(ctx context.Context, path string, mode writeMode, fieldsFn func(docstore.Snapshot) (docstore.Fields, error)) error {
	if err := docstore.ValidateDocPath(path); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	exists := true
	err = tx.QueryRowContext(ctx, "SELECT data FROM documents WHERE path = ?", path).Scan(&raw)
	if err == sql.ErrNoRows {
		exists = false
	} else if err != nil {
		return fmt.Errorf("failed to read document %s: %w", path, err)
	}

	if mode == writeMerge && !exists {
		return fmt.Errorf("%s: %w", path, docstore.ErrNotFound)
	}

	doc := map[string]any{}
	if exists && mode == writeMerge {
		if doc, err = decodeDoc(raw); err != nil {
			return err
		}
	}

	fields, err := fieldsFn(docstore.Snapshot{Path: path, Exists: exists, Data: doc})
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if err := applyFields(doc, fields, now); err != nil {
		return fmt.Errorf("failed to apply update to %s: %w", path, err)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, parent, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, docstore.ParentOf(path), string(encoded), now,
	)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write to %s: %w", path, err)
	}

	// Latency-compensation echo: the writing session observes its own write
	// flagged as pending, strictly before the committed broadcast. Delivered
	// only after the transaction has released the database connection, so
	// callbacks are free to read the store.
	if origin := docstore.OriginFrom(ctx); origin != "" {
		s.watch.echoPending(origin, docstore.Snapshot{
			Path:             path,
			Exists:           true,
			HasPendingWrites: true,
			Data:             doc,
		})
	}

	s.notifyCommitted(path, doc)
	return nil
}

// notifyCommitted fans a committed write out to document watchers on the
// path and query watchers on the containing collection.
func (s *Store) notifyCommitted(path string, doc map[string]any) {
	s.watch.broadcastDoc(docstore.Snapshot{Path: path, Exists: true, Data: doc})

	parent := docstore.ParentOf(path)
	for _, qw := range s.watch.queryWatchersFor(parent) {
		results, err := s.GetAll(context.Background(), qw.query)
		if err != nil {
			continue
		}
		qw.fn(results)
	}
}

// GetAll runs a query once. Scan order is insertion order, so OrderBy ties
// (equal timestamps within one millisecond) keep their append order.
func (s *Store) GetAll(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, data FROM documents WHERE parent = ? ORDER BY rowid", q.Collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var results []docstore.Snapshot
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		ok, err := matchesFilter(doc, q.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, docstore.Snapshot{Path: path, Exists: true, Data: doc})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	if q.OrderBy != "" {
		field := q.OrderBy
		sort.SliceStable(results, func(i, j int) bool {
			return lessValue(results[i].Data[field], results[j].Data[field])
		})
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func matchesFilter(doc map[string]any, f *docstore.Filter) (bool, error) {
	if f == nil {
		return true, nil
	}
	want, err := normalize(f.Value)
	if err != nil {
		return false, fmt.Errorf("filter value: %w", err)
	}
	got := doc[f.Field]

	switch f.Op {
	case "==":
		return equalValue(got, want), nil
	case "array-contains":
		arr, ok := got.([]any)
		if !ok {
			return false, nil
		}
		return containsDeep(arr, want), nil
	default:
		return false, fmt.Errorf("unsupported filter op %q", f.Op)
	}
}

func equalValue(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

// lessValue orders JSON scalars for OrderBy: numbers before anything else,
// then strings, then the rest by their printed form.
func lessValue(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	if aok != bok {
		return aok
	}
	as, sok := a.(string)
	bs, tok := b.(string)
	if sok && tok {
		return as < bs
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func decodeDoc(raw string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
