package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rewired-gh/mawaqit/internal/calc"
	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
	"github.com/rewired-gh/mawaqit/internal/storage"
)

// Calculator computes one day of prayer times. *calc.Engine implements it.
type Calculator interface {
	Compute(coords models.Coordinates, date models.Date, p calc.EffectiveParameters) (models.PrayerTimeSet, error)
}

// Result is a lookup outcome together with where it came from.
type Result struct {
	Set    models.PrayerTimeSet
	Key    storage.Key
	Cached bool
	// Stale is set when computation failed and the most recent set cached for the
	// same location and date under other settings was returned instead.
	Stale bool
}

// Service is the shared prayer-time calculation service. Exactly one exists per
// Coordinator, and every consumer the coordinator builds holds that same instance.
type Service struct {
	calculator Calculator
	resolver   *calc.Resolver
	cache      *storage.MultiTier
	settings   func() models.SettingsSnapshot
	precision  int
	now        func() time.Time

	computations atomic.Uint64
}

func newService(calculator Calculator, resolver *calc.Resolver, cache *storage.MultiTier, settings func() models.SettingsSnapshot, precision int, now func() time.Time) *Service {
	return &Service{
		calculator: calculator,
		resolver:   resolver,
		cache:      cache,
		settings:   settings,
		precision:  precision,
		now:        now,
	}
}

// GetPrayerTimes returns prayer times for date at coords under the current settings.
func (s *Service) GetPrayerTimes(ctx context.Context, date models.Date, coords models.Coordinates) (models.PrayerTimeSet, error) {
	r, err := s.Lookup(ctx, date, coords)
	return r.Set, err
}

// Lookup is GetPrayerTimes reporting cache provenance.
//
// The settings are read once, when the call starts. The cache key, the resolved
// parameters and the key the result is written under all derive from that one
// snapshot, so a settings change while computing never files the result under
// the new settings.
func (s *Service) Lookup(ctx context.Context, date models.Date, coords models.Coordinates) (Result, error) {
	if err := coords.Validate(); err != nil {
		return Result{}, calc.NewError(calc.KindInvalidCoordinates, err)
	}
	if date.IsZero() {
		return Result{}, calc.NewError(calc.KindInvalidCoordinates, errors.New("date must be set"))
	}
	return s.lookupWith(ctx, date, coords, s.settings())
}

func (s *Service) lookupWith(ctx context.Context, date models.Date, coords models.Coordinates, snap models.SettingsSnapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	log := logger.With("service")

	params, used := s.resolver.ForSettings(snap, date)
	key := s.keyFor(date, coords, used, params)

	if e, ok := s.cache.Get(ctx, key); ok {
		return Result{Set: e.Set, Key: key, Cached: true}, nil
	}

	set, err := s.calculator.Compute(coords, date, params)
	s.computations.Add(1)
	if err != nil {
		if stale, ok := s.cache.Stale(ctx, key); ok {
			log.Warn().Err(err).
				Str("key", key.String()).
				Str("stale_key", stale.Key.String()).
				Msg("calculation failed, serving stale times")
			return Result{Set: stale.Set, Key: stale.Key, Cached: true, Stale: true}, nil
		}
		return Result{Key: key}, err
	}

	set.ComputedAt = s.now()
	s.cache.Put(ctx, storage.Entry{Key: key, Set: set})
	log.Debug().
		Str("key", key.String()).
		Msg("computed prayer times")
	return Result{Set: set, Key: key}, nil
}

// Preview computes times for date and coords under snap without reading or
// writing the cache. When ramadan is set the date is treated as a Ramadan day.
func (s *Service) Preview(date models.Date, coords models.Coordinates, snap models.SettingsSnapshot, ramadan bool) (models.PrayerTimeSet, error) {
	if err := coords.Validate(); err != nil {
		return models.PrayerTimeSet{}, calc.NewError(calc.KindInvalidCoordinates, err)
	}
	cal := s.resolver.Context(date)
	cal.IsRamadan = cal.IsRamadan || ramadan
	params, _ := s.resolver.ForContext(snap, cal)

	set, err := s.calculator.Compute(coords, date, params)
	s.computations.Add(1)
	if err != nil {
		return models.PrayerTimeSet{}, err
	}
	set.ComputedAt = s.now()
	return set, nil
}

// KeyFor returns the cache key a lookup for date and coords would use under snap.
func (s *Service) KeyFor(date models.Date, coords models.Coordinates, snap models.SettingsSnapshot) storage.Key {
	params, used := s.resolver.ForSettings(snap, date)
	return s.keyFor(date, coords, used, params)
}

func (s *Service) keyFor(date models.Date, coords models.Coordinates, used models.SettingsSnapshot, params calc.EffectiveParameters) storage.Key {
	variant := storage.Variant(params.Maghrib.Astronomical(), used.HighLatitudeRule)
	return storage.NewKey(date, coords, used.Method, used.Madhab, variant, s.precision)
}

// Invalidate drops the cached set for date and coords under the current settings.
// Sets cached under other settings are kept.
func (s *Service) Invalidate(ctx context.Context, date models.Date, coords models.Coordinates) {
	s.cache.Invalidate(ctx, s.KeyFor(date, coords, s.settings()))
}

// Computations returns how many times the calculator has been invoked.
func (s *Service) Computations() uint64 {
	return s.computations.Load()
}

// CacheStats returns the underlying cache counters.
func (s *Service) CacheStats() storage.Stats {
	return s.cache.Stats()
}
