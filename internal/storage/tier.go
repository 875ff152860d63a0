// Package storage provides the prayer-time cache tiers and the settings store.
//
// A MultiTier cache combines a bounded in-memory tier with one persisted tier
// (SQLite, PostgreSQL, Redis or a JSON file). Reads check memory first and promote
// persisted hits; writes go to both. Persisted tier failures degrade the cache to
// memory-only and are never surfaced to callers. Each tier guards its own state;
// there is no lock spanning tiers.
//
// Changing calculation settings never deletes entries: a new key simply misses.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by tiers used after Close.
var ErrClosed = errors.New("storage closed")

// Tier is one physical cache layer.
type Tier interface {
	Name() string
	// Get returns the entry for key. A miss is (Entry{}, false, nil).
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key Key) error
	Close() error
}

// LocationScanner is implemented by tiers that can find any entry for a date and
// place regardless of method and madhab.
type LocationScanner interface {
	// Latest returns the most recently stored entry sharing key's date and rounded
	// location, or false if none exists.
	Latest(ctx context.Context, key Key) (Entry, bool, error)
}

// Sizer is implemented by tiers that can report their entry count.
type Sizer interface {
	Len(ctx context.Context) (int, error)
}

// sameLocation reports whether a and b share date and rounded location.
func sameLocation(a, b Key) bool {
	return a.Location() == b.Location()
}
