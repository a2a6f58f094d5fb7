// Package cache memoizes definition-resolution results keyed by
// (file, module, reference-identity), coalescing concurrent lookups into a
// single computation per key.
package cache

import (
	"context"
	"sync"

	"def-gateway/src/internal/common"
	"def-gateway/src/internal/types"
)

// LoadFunc computes a Result for a key on a miss. The error return is
// reserved for context cancellation.
type LoadFunc func(ctx context.Context) (types.Result, error)

// entry is one Key's single-assignment slot. result is written exactly once
// before done is closed; after that it is immutable.
type entry struct {
	key    types.Key
	done   chan struct{}
	result types.Result
}

func (e *entry) completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Future is the read side of one coalesced computation. All concurrent
// requesters of a key share the same Future.
type Future struct {
	entry *entry
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.entry.done
}

// Result returns the computed value. Only valid after Done is closed.
func (f *Future) Result() types.Result {
	return f.entry.result
}

// Entry is a point-in-time snapshot of one completed cache entry.
type Entry struct {
	Key    types.Key
	Result types.Result
}

// Store is the correctness cache: entries persist until explicitly
// invalidated, never evicted by capacity. Safe for concurrent use; no caller
// lock is ever required.
type Store struct {
	mu      sync.RWMutex
	entries map[types.Key]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[types.Key]*entry),
	}
}

// Get returns the future for key, starting loader exactly once per key
// regardless of concurrent callers. The loader runs detached from any
// caller's context: a waiter giving up never cancels the shared
// computation, and the eventual result still lands in the cache.
func (s *Store) Get(key types.Key, loader LoadFunc) *Future {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return &Future{entry: e}
	}

	e := &entry{key: key, done: make(chan struct{})}
	s.entries[key] = e
	s.mu.Unlock()

	go s.load(e, loader)
	return &Future{entry: e}
}

// load runs the computation and publishes its result. Transient failures
// are handed to waiters but removed from the map immediately so they never
// poison later lookups.
func (s *Store) load(e *entry, loader LoadFunc) {
	result, err := loader(context.Background())
	if err != nil {
		// Only cancellation reaches here, and the detached context cannot be
		// cancelled by callers; treat a torn-down process as unavailability.
		common.CacheLogger.Warn("Loader aborted for %s: %v", e.key.File, err)
		result = types.NoInfoResult("", types.NoInfo{Kind: types.ReplNotAvailable, Detail: err.Error()})
	}

	e.result = result
	close(e.done)

	if result.IsTransient() {
		s.removeEntry(e)
	}
}

// GetIfPresent is the non-blocking snapshot read: it returns a result only
// for completed entries, never waiting on an in-flight computation.
func (s *Store) GetIfPresent(key types.Key) (types.Result, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !e.completed() {
		return types.Result{}, false
	}
	return e.result, true
}

// Put stores an already-computed result, replacing any completed entry for
// the key. Transient results are never stored. An in-flight entry is left
// alone: its own computation will publish.
func (s *Store) Put(key types.Key, result types.Result) {
	if result.IsTransient() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok && !existing.completed() {
		return
	}
	e := &entry{key: key, done: make(chan struct{}), result: result}
	close(e.done)
	s.entries[key] = e
}

// Invalidate removes the entry for key, if any.
func (s *Store) Invalidate(key types.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// InvalidateMatching removes every completed entry the predicate selects.
// The scan works on a snapshot, so the store may change concurrently.
func (s *Store) InvalidateMatching(pred func(Entry) bool) int {
	removed := 0
	for _, snap := range s.Snapshot() {
		if pred(snap) {
			s.Invalidate(snap.Key)
			removed++
		}
	}
	return removed
}

// Snapshot returns all completed entries at this instant. In-flight
// computations are skipped: they have no result to scan yet.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.completed() {
			entries = append(entries, Entry{Key: e.key, Result: e.result})
		}
	}
	return entries
}

// Len returns the number of entries, including in-flight ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// removeEntry deletes e only if it still owns its key's slot.
func (s *Store) removeEntry(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[e.key]; ok && current == e {
		delete(s.entries, e.key)
	}
}
