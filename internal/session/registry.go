package session

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/pantrio/pantrio/internal/docstore"
)

// Registry tracks one cancellable subscription per member uid. Reconcile
// diffs the desired uid set against the live one on every membership
// change: departed uids are cancelled, added uids started, covered uids
// left alone. A subscription for a uid no longer in the group is a leak;
// a second subscription for a covered uid is a defect.
type Registry struct {
	mu   sync.Mutex
	subs map[string]docstore.CancelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: map[string]docstore.CancelFunc{}}
}

// Reconcile brings the live subscription set to exactly desired. start is
// called outside the registry lock for each uid to open; a start failure is
// logged and the uid retried on the next reconcile.
func (r *Registry) Reconcile(desired []string, start func(uid string) (docstore.CancelFunc, error)) {
	want := make(map[string]bool, len(desired))
	for _, uid := range desired {
		want[uid] = true
	}

	r.mu.Lock()
	var drop []docstore.CancelFunc
	for uid, cancel := range r.subs {
		if !want[uid] {
			drop = append(drop, cancel)
			delete(r.subs, uid)
		}
	}
	var add []string
	for uid := range want {
		if _, covered := r.subs[uid]; !covered {
			add = append(add, uid)
		}
	}
	r.mu.Unlock()

	for _, cancel := range drop {
		cancel()
	}
	for _, uid := range add {
		cancel, err := start(uid)
		if err != nil {
			slog.Warn("Failed to start member subscription", "uid", uid, "error", err)
			continue
		}
		r.mu.Lock()
		if _, dup := r.subs[uid]; dup {
			// A concurrent reconcile beat us to it.
			r.mu.Unlock()
			cancel()
			continue
		}
		r.subs[uid] = cancel
		r.mu.Unlock()
	}
}

// Active returns the uids with a live subscription, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	uids := make([]string, 0, len(r.subs))
	for uid := range r.subs {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// Close cancels every subscription. The registry stays usable; a later
// Reconcile simply starts over.
func (r *Registry) Close() {
	r.mu.Lock()
	drop := make([]docstore.CancelFunc, 0, len(r.subs))
	for uid, cancel := range r.subs {
		drop = append(drop, cancel)
		delete(r.subs, uid)
	}
	r.mu.Unlock()

	for _, cancel := range drop {
		cancel()
	}
}
