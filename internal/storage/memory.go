package storage

import (
	"context"
	"sort"
	"sync"
)

// DefaultMaxEntries bounds the memory tier when no limit is configured.
const DefaultMaxEntries = 4096

// MemoryTier is a thread-safe in-memory tier bounded by entry count. When full, the
// earliest inserted entries are rotated out.
type MemoryTier struct {
	entries    map[Key]memEntry
	seq        uint64
	mu         sync.RWMutex
	maxEntries int
}

type memEntry struct {
	Entry
	seq uint64
}

// NewMemoryTier creates a memory tier holding at most maxEntries entries.
func NewMemoryTier(maxEntries int) *MemoryTier {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryTier{
		entries:    make(map[Key]memEntry),
		maxEntries: maxEntries,
	}
}

// Name identifies the tier in logs.
func (m *MemoryTier) Name() string {
	return "memory"
}

// Get retrieves an entry by key
func (m *MemoryTier) Get(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	return e.Entry, ok, nil
}

// Put stores an entry under its own key and rotates if over capacity.
func (m *MemoryTier) Put(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.entries[entry.Key] = memEntry{Entry: entry, seq: m.seq}
	if len(m.entries) > m.maxEntries {
		m.rotateLocked()
	}
	return nil
}

// Delete removes an entry. Deleting a missing key is not an error.
func (m *MemoryTier) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Latest returns the most recently stored entry at key's date and location.
func (m *MemoryTier) Latest(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best Entry
	found := false
	for k, e := range m.entries {
		if !sameLocation(k, key) {
			continue
		}
		if !found || e.StoredAt.After(best.StoredAt) {
			best, found = e.Entry, true
		}
	}
	return best, found, nil
}

// Len returns the number of entries.
func (m *MemoryTier) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close drops all entries.
func (m *MemoryTier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[Key]memEntry)
	return nil
}

// rotateLocked removes the earliest inserted entries until the tier is within its
// bound. Callers must hold the write lock.
func (m *MemoryTier) rotateLocked() {
	keys := make([]Key, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}

	// Oldest insertion first
	sort.Slice(keys, func(i, j int) bool {
		return m.entries[keys[i]].seq < m.entries[keys[j]].seq
	})

	toRemove := len(m.entries) - m.maxEntries
	for i := 0; i < toRemove; i++ {
		delete(m.entries, keys[i])
	}
}
