package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rewired-gh/mawaqit/internal/logger"
)

// DefaultRetryInterval is how long a degraded persisted tier is skipped before the
// next attempt.
const DefaultRetryInterval = 30 * time.Second

// Stats are cumulative MultiTier counters.
type Stats struct {
	Hits          uint64 `json:"hits"`
	MemoryHits    uint64 `json:"memory_hits"`
	PersistedHits uint64 `json:"persisted_hits"`
	Misses        uint64 `json:"misses"`
	Promotions    uint64 `json:"promotions"`
	Puts          uint64 `json:"puts"`
	PersistErrors uint64 `json:"persist_errors"`
	Degraded      bool   `json:"degraded"`
	PersistedTier string `json:"persisted_tier"`
}

// MultiTier is a two-level cache: memory in front of an optional persisted tier.
// Persisted failures are logged and switch the cache to memory-only until a retry
// succeeds; they never fail a Get or Put.
type MultiTier struct {
	memory    *MemoryTier
	persisted Tier

	retryInterval time.Duration
	now           func() time.Time

	degradedMu    sync.Mutex
	degradedUntil time.Time
	degraded      atomic.Bool

	memoryHits    atomic.Uint64
	persistedHits atomic.Uint64
	misses        atomic.Uint64
	promotions    atomic.Uint64
	puts          atomic.Uint64
	persistErrors atomic.Uint64
}

// MultiTierOption configures a MultiTier.
type MultiTierOption func(*MultiTier)

// WithRetryInterval sets how long a failing persisted tier is skipped.
func WithRetryInterval(d time.Duration) MultiTierOption {
	return func(m *MultiTier) {
		if d >= 0 {
			m.retryInterval = d
		}
	}
}

// WithClock overrides time.Now for entry stamps and retry scheduling.
func WithClock(now func() time.Time) MultiTierOption {
	return func(m *MultiTier) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMultiTier creates a cache over memory and persisted. persisted may be nil for a
// memory-only cache.
func NewMultiTier(memory *MemoryTier, persisted Tier, opts ...MultiTierOption) *MultiTier {
	if memory == nil {
		memory = NewMemoryTier(0)
	}
	m := &MultiTier{
		memory:        memory,
		persisted:     persisted,
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the entry for key from memory, else from the persisted tier, promoting
// a persisted hit into memory.
func (m *MultiTier) Get(ctx context.Context, key Key) (Entry, bool) {
	if e, ok, _ := m.memory.Get(ctx, key); ok {
		m.memoryHits.Add(1)
		return e, true
	}

	if m.persistedAvailable() {
		e, ok, err := m.persisted.Get(ctx, key)
		if err != nil {
			m.persistFailed("get", key, err)
		} else {
			m.persistSucceeded()
			if ok {
				m.persistedHits.Add(1)
				_ = m.memory.Put(ctx, e)
				m.promotions.Add(1)
				return e, true
			}
		}
	}

	m.misses.Add(1)
	return Entry{}, false
}

// Put stores entry under entry.Key in both tiers. StoredAt is stamped
// when zero.
func (m *MultiTier) Put(ctx context.Context, entry Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = m.now()
	}
	m.puts.Add(1)
	_ = m.memory.Put(ctx, entry)

	if !m.persistedAvailable() {
		return
	}
	if err := m.persisted.Put(ctx, entry); err != nil {
		m.persistFailed("put", entry.Key, err)
		return
	}
	m.persistSucceeded()
}

// Invalidate removes key from both tiers.
func (m *MultiTier) Invalidate(ctx context.Context, key Key) {
	_ = m.memory.Delete(ctx, key)
	if m.persisted == nil {
		return
	}
	// Deletes are attempted even when degraded so a stale row cannot resurface.
	if err := m.persisted.Delete(ctx, key); err != nil {
		m.persistFailed("delete", key, err)
		return
	}
	m.persistSucceeded()
}

// Stale returns the most recently stored entry for key's date and location under
// any settings, for use when recomputation fails.
func (m *MultiTier) Stale(ctx context.Context, key Key) (Entry, bool) {
	best, found, _ := m.memory.Latest(ctx, key)

	scanner, ok := m.persisted.(LocationScanner)
	if !ok || !m.persistedAvailable() {
		return best, found
	}
	e, ok, err := scanner.Latest(ctx, key)
	if err != nil {
		m.persistFailed("stale", key, err)
		return best, found
	}
	m.persistSucceeded()
	if ok && (!found || e.StoredAt.After(best.StoredAt)) {
		return e, true
	}
	return best, found
}

// Degraded reports whether the persisted tier is currently being skipped.
func (m *MultiTier) Degraded() bool {
	return m.degraded.Load()
}

// Stats returns a snapshot of the counters.
func (m *MultiTier) Stats() Stats {
	s := Stats{
		MemoryHits:    m.memoryHits.Load(),
		PersistedHits: m.persistedHits.Load(),
		Misses:        m.misses.Load(),
		Promotions:    m.promotions.Load(),
		Puts:          m.puts.Load(),
		PersistErrors: m.persistErrors.Load(),
		Degraded:      m.degraded.Load(),
	}
	s.Hits = s.MemoryHits + s.PersistedHits
	if m.persisted != nil {
		s.PersistedTier = m.persisted.Name()
	}
	return s
}

// Close closes the persisted tier and drops memory.
func (m *MultiTier) Close() error {
	_ = m.memory.Close()
	if m.persisted != nil {
		return m.persisted.Close()
	}
	return nil
}

func (m *MultiTier) persistedAvailable() bool {
	if m.persisted == nil {
		return false
	}
	if !m.degraded.Load() {
		return true
	}
	m.degradedMu.Lock()
	defer m.degradedMu.Unlock()
	return !m.now().Before(m.degradedUntil)
}

func (m *MultiTier) persistFailed(op string, key Key, err error) {
	m.persistErrors.Add(1)

	m.degradedMu.Lock()
	m.degradedUntil = m.now().Add(m.retryInterval)
	m.degradedMu.Unlock()

	if !m.degraded.Swap(true) {
		log := logger.With("cache")
		log.Warn().Err(err).
			Str("tier", m.persisted.Name()).
			Str("op", op).
			Str("key", key.String()).
			Dur("retry_in", m.retryInterval).
			Msg("persisted cache tier failed, continuing memory-only")
		return
	}
	log := logger.With("cache")
	log.Debug().Err(err).Str("op", op).Str("key", key.String()).Msg("persisted cache tier still failing")
}

func (m *MultiTier) persistSucceeded() {
	if m.degraded.Swap(false) {
		log := logger.With("cache")
		log.Info().Str("tier", m.persisted.Name()).Msg("persisted cache tier recovered")
	}
}
