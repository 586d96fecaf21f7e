package sqlite

import (
	"context"
	"sync"

	"github.com/pantrio/pantrio/internal/docstore"
)

// watchHub tracks live subscriptions. Deliveries happen on the writer's
// goroutine, in commit order, so callbacks must be quick and must not write
// back into the store.
type watchHub struct {
	mu      sync.Mutex
	nextID  int64
	docs    map[int64]*docWatcher
	queries map[int64]*queryWatcher
	closed  bool
}

type docWatcher struct {
	path   string
	origin string
	fn     func(docstore.Snapshot)
}

type queryWatcher struct {
	query  docstore.Query
	origin string
	fn     func([]docstore.Snapshot)
}

func (h *watchHub) init() {
	h.docs = map[int64]*docWatcher{}
	h.queries = map[int64]*queryWatcher{}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.docs = map[int64]*docWatcher{}
	h.queries = map[int64]*queryWatcher{}
}

// Subscribe watches a single document. The current state (including
// absence) is delivered synchronously before Subscribe returns.
func (s *Store) Subscribe(ctx context.Context, path string, fn func(docstore.Snapshot)) (docstore.CancelFunc, error) {
	if err := docstore.ValidateDocPath(path); err != nil {
		return nil, err
	}

	w := &docWatcher{path: path, origin: docstore.OriginFrom(ctx), fn: fn}
	cancel := s.watch.addDoc(w)

	initial, err := s.Get(ctx, path)
	if err == nil {
		fn(initial)
	} else {
		fn(docstore.Snapshot{Path: path})
	}
	return cancel, nil
}

// SubscribeQuery watches a query's result set. The current result is
// delivered synchronously before SubscribeQuery returns.
func (s *Store) SubscribeQuery(ctx context.Context, q docstore.Query, fn func([]docstore.Snapshot)) (docstore.CancelFunc, error) {
	w := &queryWatcher{query: q, origin: docstore.OriginFrom(ctx), fn: fn}
	cancel := s.watch.addQuery(w)

	initial, err := s.GetAll(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}
	fn(initial)
	return cancel, nil
}

func (h *watchHub) addDoc(w *docWatcher) docstore.CancelFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if !h.closed {
		h.docs[id] = w
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.docs, id)
	}
}

func (h *watchHub) addQuery(w *queryWatcher) docstore.CancelFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if !h.closed {
		h.queries[id] = w
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.queries, id)
	}
}

// echoPending delivers the writing session's own write, flagged pending, to
// document watchers opened by that session. Runs between commit and the
// committed broadcast.
func (h *watchHub) echoPending(origin string, snap docstore.Snapshot) {
	for _, w := range h.docWatchersFor(snap.Path) {
		if w.origin != "" && w.origin == origin {
			w.fn(snap)
		}
	}
}

// broadcastDoc delivers a committed snapshot to every watcher of the path.
func (h *watchHub) broadcastDoc(snap docstore.Snapshot) {
	for _, w := range h.docWatchersFor(snap.Path) {
		w.fn(snap)
	}
}

func (h *watchHub) docWatchersFor(path string) []*docWatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*docWatcher
	for _, w := range h.docs {
		if w.path == path {
			out = append(out, w)
		}
	}
	return out
}

func (h *watchHub) queryWatchersFor(collection string) []*queryWatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*queryWatcher
	for _, w := range h.queries {
		if w.query.Collection == collection {
			out = append(out, w)
		}
	}
	return out
}
