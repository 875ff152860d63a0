package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const fileFormatVersion = "1.0"

// cacheFile is the on-disk layout of a FileTier.
type cacheFile struct {
	Version string           `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	Entries map[string]Entry `json:"entries"`
}

// FileTier persists entries as one JSON document, rewritten atomically on each change.
// It holds at most maxEntries entries; the earliest stored are rotated out first.
type FileTier struct {
	entries         map[string]Entry
	mu              sync.RWMutex
	maxEntries      int
	filePath        string
	filePermissions os.FileMode
	dirPermissions  os.FileMode
	closed          bool
}

// NewFileTier opens (or creates on first write) a JSON cache file. If filePath is
// empty, an OS-appropriate temp path is used.
func NewFileTier(filePath string, filePermissions, dirPermissions os.FileMode) (*FileTier, error) {
	if filePath == "" {
		filePath = filepath.Join(os.TempDir(), "mawaqit", "cache.json")
	}
	if filePermissions == 0 {
		filePermissions = 0o644
	}
	if dirPermissions == 0 {
		dirPermissions = 0o755
	}

	f := &FileTier{
		entries:         make(map[string]Entry),
		maxEntries:      DefaultMaxEntries,
		filePath:        filePath,
		filePermissions: filePermissions,
		dirPermissions:  dirPermissions,
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// WithMaxEntries bounds the tier. Non-positive values keep DefaultMaxEntries.
// A file holding more entries is trimmed on the next write.
func (f *FileTier) WithMaxEntries(n int) *FileTier {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n > 0 {
		f.maxEntries = n
	}
	return f
}

// Name identifies the tier in logs.
func (f *FileTier) Name() string {
	return "file"
}

// Get retrieves an entry by key.
func (f *FileTier) Get(_ context.Context, key Key) (Entry, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return Entry{}, false, ErrClosed
	}
	e, ok := f.entries[key.String()]
	return e, ok, nil
}

// Put stores entry and persists the file.
func (f *FileTier) Put(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	id := entry.Key.String()
	prev, had := f.entries[id]
	f.entries[id] = entry
	evicted := f.rotateLocked()
	if err := f.saveLocked(); err != nil {
		// Keep memory consistent with disk.
		if had {
			f.entries[id] = prev
		} else {
			delete(f.entries, id)
		}
		for _, e := range evicted {
			f.entries[e.Key.String()] = e
		}
		return err
	}
	return nil
}

// rotateLocked removes the earliest stored entries until the tier is within its
// bound and returns them. Callers must hold the write lock.
func (f *FileTier) rotateLocked() []Entry {
	excess := len(f.entries) - f.maxEntries
	if excess <= 0 {
		return nil
	}

	all := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StoredAt.Equal(all[j].StoredAt) {
			return all[i].StoredAt.Before(all[j].StoredAt)
		}
		return all[i].Key.String() < all[j].Key.String()
	})

	evicted := all[:excess]
	for _, e := range evicted {
		delete(f.entries, e.Key.String())
	}
	return evicted
}

// Delete removes an entry and persists the file.
func (f *FileTier) Delete(_ context.Context, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	id := key.String()
	if _, ok := f.entries[id]; !ok {
		return nil
	}
	delete(f.entries, id)
	return f.saveLocked()
}

// Latest returns the most recently stored entry at key's date and location.
func (f *FileTier) Latest(_ context.Context, key Key) (Entry, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return Entry{}, false, ErrClosed
	}
	var best Entry
	found := false
	for _, e := range f.entries {
		if !sameLocation(e.Key, key) {
			continue
		}
		if !found || e.StoredAt.After(best.StoredAt) {
			best, found = e, true
		}
	}
	return best, found, nil
}

// Len returns the number of entries.
func (f *FileTier) Len(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries), nil
}

// Close marks the tier closed. Data is already on disk.
func (f *FileTier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// saveLocked writes all entries to a temp file and renames it into place.
func (f *FileTier) saveLocked() error {
	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, f.dirPermissions); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data := cacheFile{
		Version: fileFormatVersion,
		SavedAt: time.Now(),
		Entries: f.entries,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tempPath := f.filePath + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, f.filePermissions); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tempPath, f.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// load restores entries from disk. A missing file starts empty.
func (f *FileTier) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Clean up any stale temp files from previous crashes
	tempPath := f.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	jsonData, err := os.ReadFile(f.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var data cacheFile
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal cache file: %w", err)
	}

	if data.Entries != nil {
		// Re-key from the stored keys so format changes in String do not orphan entries.
		for _, e := range data.Entries {
			f.entries[e.Key.String()] = e
		}
	}
	return nil
}
