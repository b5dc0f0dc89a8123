// Package statemanager implements the keyed cache, subscriber registry,
// in-flight promise registry, and data-change observer set from spec.md
// §4.1.
//
// Grounded on the teacher's concurrent registry idiom (core/bifrost.go's
// sync.Map-keyed per-provider state) generalized to a single
// sync.RWMutex-guarded map — a plain mutex fits better here than sync.Map
// because every mutating operation (setCache, markStale, setMeta) reads
// the existing entry before writing it, which is exactly the access
// pattern sync.Map is not optimized for.
package statemanager

import (
	"reflect"
	"sync"

	"github.com/maximhq/datahook/schemas"
)

// SetCacheOptions carries the optional pieces of a setCache call.
// Pointer/"has" pairs encode "was this field present in the call" since
// spec.md requires e.g. previousData to be set "only when the partial
// includes that key (presence, not value)."
type SetCacheOptions struct {
	Data    any
	HasData bool

	Err    error
	HasErr bool

	Timestamp    int64
	HasTimestamp bool

	Tags    []string
	HasTags bool

	PreviousData    any
	HasPreviousData bool

	Stale    bool
	HasStale bool
}

// Manager is the state manager described in spec.md §4.1.
type Manager struct {
	mu          sync.RWMutex
	entries     map[string]schemas.CacheEntry
	subscribers map[string][]subscriber
	pending     map[string]any
	onChange    []dataChangeSubscriber
	nextSubID   int64
}

type subscriber struct {
	id int64
	fn func()
}

type dataChangeSubscriber struct {
	id int64
	fn func(key string, entry schemas.CacheEntry)
}

// Unsubscribe removes a subscription; safe to call more than once
// (spec.md §3's Subscriber lifecycle requirement).
type Unsubscribe func()

// New creates an empty state manager.
func New() *Manager {
	return &Manager{
		entries:     make(map[string]schemas.CacheEntry),
		subscribers: make(map[string][]subscriber),
		pending:     make(map[string]any),
	}
}

// GetCache returns the entry for key and whether it exists (invariant 1:
// an entry exists iff it has been seeded).
func (m *Manager) GetCache(key string) (schemas.CacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return schemas.CacheEntry{}, false
	}
	return e.Clone(), true
}

// SetCache creates-or-merges the entry at key and notifies subscribers
// of that key exactly once, synchronously, from the calling goroutine
// (spec.md §5). Returns the resulting entry.
func (m *Manager) SetCache(key string, opts SetCacheOptions) schemas.CacheEntry {
	m.mu.Lock()

	entry, existed := m.entries[key]
	prevData := entry.State.Data
	if !existed {
		entry = schemas.NewCacheEntry()
		if tag := schemas.SelfTagFromQueryKey(key); tag != nil {
			entry.SelfTag = tag
		}
	}

	if opts.HasData {
		entry.State.Data = opts.Data
	}
	if opts.HasErr {
		entry.State.Err = opts.Err
	}
	if opts.HasTimestamp {
		entry.State.Timestamp = opts.Timestamp
	}
	if opts.HasTags {
		entry.Tags = append([]string(nil), opts.Tags...)
	}
	if opts.HasPreviousData {
		entry.PreviousData = opts.PreviousData
		entry.HasPreviousData = true
	}
	if opts.HasStale {
		entry.Stale = opts.Stale
	}

	m.entries[key] = entry
	dataChanged := opts.HasData && !sameRef(prevData, entry.State.Data)
	subs := append([]subscriber(nil), m.subscribers[key]...)
	onChange := append([]dataChangeSubscriber(nil), m.onChange...)
	out := entry.Clone()

	m.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
	if dataChanged {
		for _, c := range onChange {
			c.fn(key, out)
		}
	}
	return out
}

// sameRef reports whether two values are the same reference/identity.
// For anything but pointers/slices/maps this falls back to equality,
// which is the best a dynamically-typed Data field can offer in Go;
// values that cannot be compared count as different.
func sameRef(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return va.Pointer() == vb.Pointer() && (va.Kind() != reflect.Slice || va.Len() == vb.Len())
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}

// DeleteCache removes the entry at key. Does not touch the subscriber
// set (spec.md §4.1).
func (m *Manager) DeleteCache(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// SubscribeCache registers cb against key. Subscribing alone MUST NOT
// create a cache entry (invariant 1).
func (m *Manager) SubscribeCache(key string, cb func()) Unsubscribe {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[key] = append(m.subscribers[key], subscriber{id: id, fn: cb})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			subs := m.subscribers[key]
			for i, s := range subs {
				if s.id == id {
					m.subscribers[key] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// GetCacheByTags returns the first entry (key, entry) whose tags
// intersect tags and whose state.Data is defined.
func (m *Manager) GetCacheByTags(tags []string) (string, schemas.CacheEntry, bool) {
	want := toSet(tags)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, e := range m.entries {
		if e.State.Data == nil {
			continue
		}
		if intersects(e.Tags, want) {
			return k, e.Clone(), true
		}
	}
	return "", schemas.CacheEntry{}, false
}

// KeyedEntry pairs a cache key with its entry, used by the bulk-lookup
// operations below.
type KeyedEntry struct {
	Key   string
	Entry schemas.CacheEntry
}

// GetCacheEntriesByTags returns every entry whose tags intersect tags.
func (m *Manager) GetCacheEntriesByTags(tags []string) []KeyedEntry {
	want := toSet(tags)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []KeyedEntry
	for k, e := range m.entries {
		if intersects(e.Tags, want) {
			out = append(out, KeyedEntry{Key: k, Entry: e.Clone()})
		}
	}
	return out
}

// GetCacheEntriesBySelfTag returns every entry whose SelfTag matches.
func (m *Manager) GetCacheEntriesBySelfTag(selfTag string) []KeyedEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []KeyedEntry
	for k, e := range m.entries {
		if e.SelfTag != nil && *e.SelfTag == selfTag {
			out = append(out, KeyedEntry{Key: k, Entry: e.Clone()})
		}
	}
	return out
}

// SetMeta upserts the entry at key and merges patch into Meta, notifying
// subscribers without disturbing State.
func (m *Manager) SetMeta(key string, patch map[string]any) schemas.CacheEntry {
	m.mu.Lock()
	entry, existed := m.entries[key]
	if !existed {
		entry = schemas.NewCacheEntry()
		if tag := schemas.SelfTagFromQueryKey(key); tag != nil {
			entry.SelfTag = tag
		}
	}
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}
	for k, v := range patch {
		entry.Meta[k] = v
	}
	m.entries[key] = entry
	subs := append([]subscriber(nil), m.subscribers[key]...)
	out := entry.Clone()
	m.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
	return out
}

// MarkStale sets stale=true on every entry whose tags intersect tags.
// MUST NOT notify subscribers (spec.md §4.1: the downstream refetch
// event drives re-read, not this call).
func (m *Manager) MarkStale(tags []string) {
	want := toSet(tags)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if intersects(e.Tags, want) {
			e.Stale = true
			m.entries[k] = e
		}
	}
}

// SetPendingPromise records the in-flight future for key, or clears it
// when p is nil.
func (m *Manager) SetPendingPromise(key string, p any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		delete(m.pending, key)
		return
	}
	m.pending[key] = p
}

// GetPendingPromise returns the in-flight future for key, if any.
func (m *Manager) GetPendingPromise(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pending[key]
	return p, ok
}

// GetOrCreatePendingPromise atomically loads the in-flight future for
// key, or stores and returns the value produced by create if none
// exists yet. created reports which branch was taken. This is the
// concurrent-map compute-if-absent spec.md §9 calls for when dedup runs
// under real parallelism rather than cooperative single-threading: "the
// second and later callers SHOULD be deduplicated onto the first
// in-flight future" requires the check-and-store to be a single atomic
// step, not a GetPendingPromise followed by a SetPendingPromise.
func (m *Manager) GetOrCreatePendingPromise(key string, create func() any) (value any, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[key]; ok {
		return p, false
	}
	p := create()
	m.pending[key] = p
	return p, true
}

// OnDataChange subscribes to data-reference-change notifications across
// every key (used by devtools/persistence extensions per spec.md §4.1).
func (m *Manager) OnDataChange(cb func(key string, entry schemas.CacheEntry)) Unsubscribe {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.onChange = append(m.onChange, dataChangeSubscriber{id: id, fn: cb})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, c := range m.onChange {
				if c.id == id {
					m.onChange = append(m.onChange[:i:i], m.onChange[i+1:]...)
					return
				}
			}
		})
	}
}

// GetAllCacheEntries supports external persistence adapters (spec.md
// §6: "the state manager exposes getAllCacheEntries for external
// persistence adapters"). None ships in this module (Non-goals).
func (m *Manager) GetAllCacheEntries() map[string]schemas.CacheEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]schemas.CacheEntry, len(m.entries))
	for k, e := range m.entries {
		out[k] = e.Clone()
	}
	return out
}

// Clear wipes everything: entries, subscribers, and pending promises.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]schemas.CacheEntry)
	m.subscribers = make(map[string][]subscriber)
	m.pending = make(map[string]any)
	m.onChange = nil
}

func toSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

func intersects(tags []string, want map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}
