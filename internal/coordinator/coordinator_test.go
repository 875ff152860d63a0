package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mawaqit/internal/bus"
	"github.com/rewired-gh/mawaqit/internal/calc"
	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/hijri"
	"github.com/rewired-gh/mawaqit/internal/location"
	"github.com/rewired-gh/mawaqit/internal/models"
	"github.com/rewired-gh/mawaqit/internal/storage"
)

// Accra keeps every prayer of the day on the same UTC calendar day.
var (
	accra     = models.Coordinates{Latitude: 5.6037, Longitude: -0.1870}
	testDay   = models.NewDate(2024, 6, 21)
	testNoon  = time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	errPolar  = calc.NewError(calc.KindHighLatitudeUnresolvable, errors.New("no sunrise"))
	shortWait = 3 * 30 * time.Millisecond
)

// stubCalculator wraps the real engine, counts calls and can fail or block on demand.
type stubCalculator struct {
	engine  *calc.Engine
	calls   atomic.Int64
	fail    atomic.Bool
	gate    chan struct{}
	entered chan struct{}
}

func newStubCalculator() *stubCalculator {
	return &stubCalculator{engine: calc.NewEngine()}
}

func (s *stubCalculator) Compute(coords models.Coordinates, date models.Date, p calc.EffectiveParameters) (models.PrayerTimeSet, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	if s.fail.Load() {
		return models.PrayerTimeSet{}, errPolar
	}
	return s.engine.Compute(coords, date, p)
}

type fixture struct {
	c     *Coordinator
	calc  *stubCalculator
	cache *storage.MultiTier
	store *storage.MemorySettingsStore
	clock *atomic.Int64
}

func newFixture(t *testing.T, window time.Duration, mutate ...func(*Deps)) *fixture {
	t.Helper()

	b := bus.New(window)
	t.Cleanup(b.Close)

	loc, err := location.NewStatic(accra)
	require.NoError(t, err)

	f := &fixture{
		calc:  newStubCalculator(),
		cache: storage.NewMultiTier(storage.NewMemoryTier(100), nil),
		store: storage.NewMemorySettingsStore(),
		clock: &atomic.Int64{},
	}
	f.clock.Store(testNoon.UnixNano())

	deps := Deps{
		Settings:    f.store,
		Cache:       f.cache,
		Calculator:  f.calc,
		Calendar:    hijri.New(0),
		Location:    loc,
		Bus:         b,
		RefreshDays: 3,
		Zone:        time.UTC,
		Clock:       func() time.Time { return time.Unix(0, f.clock.Load()).UTC() },
	}
	for _, m := range mutate {
		m(&deps)
	}

	f.c, err = New(deps)
	require.NoError(t, err)
	t.Cleanup(f.c.Close)
	return f
}

func (f *fixture) setClock(t time.Time) {
	f.clock.Store(t.UnixNano())
}

func setMadhab(id catalog.MadhabID) func(*models.SettingsSnapshot) {
	return func(s *models.SettingsSnapshot) { s.Madhab = id }
}

func TestConsumersShareOneService(t *testing.T) {
	f := newFixture(t, time.Hour)
	svc := f.c.Service()
	require.NotNil(t, svc)

	assert.Same(t, svc, f.c.RefreshJob().Service())
	assert.Same(t, svc, f.c.TaskManager().Service())
	assert.Same(t, svc, f.c.Tracker().Service())
	assert.Same(t, svc, f.c.ViewModel().Service())
}

func TestNewNormalizesStoredSettings(t *testing.T) {
	store := storage.NewMemorySettingsStore()
	require.NoError(t, store.Save(models.SettingsSnapshot{Method: 99, Madhab: 42, Version: 7}))

	f := newFixture(t, time.Hour, func(d *Deps) { d.Settings = store })
	got := f.c.Settings()
	assert.Equal(t, catalog.DefaultMethod, got.Method)
	assert.Equal(t, catalog.DefaultMadhab, got.Madhab)
	assert.Equal(t, uint64(7), got.Version)
}

func TestUpdateSettingsVersionsAndPersists(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	snap, err := f.c.UpdateSettings(ctx, setMadhab(catalog.MadhabHanafi))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, catalog.MadhabHanafi, snap.Madhab)
	assert.False(t, snap.UpdatedAt.IsZero())
	assert.Equal(t, snap, f.c.Settings())

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.Version, stored.Version)
	assert.Equal(t, catalog.MadhabHanafi, stored.Madhab)

	// Callers cannot forge versions.
	snap, err = f.c.UpdateSettings(ctx, func(s *models.SettingsSnapshot) { s.Version = 100 })
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestUpdateSettingsUsesInjectedClock(t *testing.T) {
	f := newFixture(t, time.Hour)
	ahead := testNoon.AddDate(1, 0, 0)
	f.setClock(ahead)

	snap, err := f.c.UpdateSettings(context.Background(), setMadhab(catalog.MadhabMaliki))
	require.NoError(t, err)
	assert.True(t, snap.UpdatedAt.Equal(ahead))
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	f := newFixture(t, time.Hour)
	before := f.c.Settings()

	_, err := f.c.UpdateSettings(context.Background(), func(s *models.SettingsSnapshot) { s.Method = 99 })
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, before, f.c.Settings())
}

func TestUpdateSettingsAfterClose(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.c.Close()
	_, err := f.c.UpdateSettings(context.Background(), setMadhab(catalog.MadhabHanafi))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSettingsSwitchDoesNotPurge(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	svc := f.c.Service()

	shafi, err := svc.GetPrayerTimes(ctx, testDay, accra)
	require.NoError(t, err)

	_, err = f.c.UpdateSettings(ctx, setMadhab(catalog.MadhabHanafi))
	require.NoError(t, err)

	hanafi, err := svc.Lookup(ctx, testDay, accra)
	require.NoError(t, err)
	assert.False(t, hanafi.Cached, "new settings must not be served from the old key")
	assert.True(t, hanafi.Set.Get(models.Asr).After(shafi.Get(models.Asr)))
	assert.Equal(t, int64(2), f.calc.calls.Load())

	_, err = f.c.UpdateSettings(ctx, setMadhab(catalog.MadhabShafi))
	require.NoError(t, err)

	back, err := svc.Lookup(ctx, testDay, accra)
	require.NoError(t, err)
	assert.True(t, back.Cached, "switching back should hit the original entry")
	assert.Equal(t, shafi.Get(models.Asr), back.Set.Get(models.Asr))
	assert.Equal(t, int64(2), f.calc.calls.Load())
}

func TestAstronomicalMaghribUsesSeparateKey(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	svc := f.c.Service()

	_, err := f.c.UpdateSettings(ctx, func(s *models.SettingsSnapshot) {
		s.Method = catalog.MethodTehran
		s.Madhab = catalog.MadhabJafari
	})
	require.NoError(t, err)
	delayed, err := svc.Lookup(ctx, testDay, accra)
	require.NoError(t, err)

	_, err = f.c.UpdateSettings(ctx, func(s *models.SettingsSnapshot) { s.UseAstronomicalMaghrib = true })
	require.NoError(t, err)
	astro, err := svc.Lookup(ctx, testDay, accra)
	require.NoError(t, err)

	assert.False(t, astro.Cached)
	assert.NotEqual(t, delayed.Key, astro.Key)
	assert.Equal(t, "astro", astro.Key.Variant)
	assert.Empty(t, delayed.Key.Variant)
}

func TestStaleFallbackOnCalculationFailure(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	svc := f.c.Service()

	good, err := svc.GetPrayerTimes(ctx, testDay, accra)
	require.NoError(t, err)

	_, err = f.c.UpdateSettings(ctx, func(s *models.SettingsSnapshot) { s.Method = catalog.MethodEgyptian })
	require.NoError(t, err)
	f.calc.fail.Store(true)

	r, err := svc.Lookup(ctx, testDay, accra)
	require.NoError(t, err)
	assert.True(t, r.Stale)
	assert.Equal(t, catalog.MethodMuslimWorldLeague, r.Set.Method)
	assert.Equal(t, good.Get(models.Fajr), r.Set.Get(models.Fajr))

	// Nothing cached for another day: the failure surfaces.
	_, err = svc.GetPrayerTimes(ctx, testDay.AddDays(10), accra)
	assert.ErrorIs(t, err, calc.ErrHighLatitudeUnresolvable)
	assert.Equal(t, calc.KindHighLatitudeUnresolvable, calc.KindOf(err))
}

func TestKeyCapturedAtComputationStart(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.calc.gate = make(chan struct{})
	f.calc.entered = make(chan struct{}, 1)
	ctx := context.Background()
	svc := f.c.Service()

	before := f.c.Settings()
	type outcome struct {
		r   Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := svc.Lookup(ctx, testDay, accra)
		done <- outcome{r, err}
	}()

	select {
	case <-f.calc.entered:
	case <-time.After(time.Second):
		t.Fatal("computation never started")
	}

	after, err := f.c.UpdateSettings(ctx, setMadhab(catalog.MadhabHanafi))
	require.NoError(t, err)
	close(f.calc.gate)

	var got outcome
	select {
	case got = <-done:
	case <-time.After(time.Second):
		t.Fatal("computation never finished")
	}
	require.NoError(t, got.err)

	oldKey := svc.KeyFor(testDay, accra, before)
	newKey := svc.KeyFor(testDay, accra, after)
	require.NotEqual(t, oldKey, newKey)
	assert.Equal(t, oldKey, got.r.Key)
	assert.Equal(t, catalog.MadhabShafi, got.r.Set.Madhab)

	_, ok := f.cache.Get(ctx, oldKey)
	assert.True(t, ok, "result belongs under the key of the settings it was computed with")
	_, ok = f.cache.Get(ctx, newKey)
	assert.False(t, ok, "result must not be filed under the new settings")
}

func TestInvalidateOnlyCurrentSettings(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	svc := f.c.Service()

	_, err := svc.GetPrayerTimes(ctx, testDay, accra)
	require.NoError(t, err)
	shafiKey := svc.KeyFor(testDay, accra, f.c.Settings())

	_, err = f.c.UpdateSettings(ctx, setMadhab(catalog.MadhabHanafi))
	require.NoError(t, err)
	_, err = svc.GetPrayerTimes(ctx, testDay, accra)
	require.NoError(t, err)

	svc.Invalidate(ctx, testDay, accra)
	r, err := svc.Lookup(ctx, testDay, accra)
	require.NoError(t, err)
	assert.False(t, r.Cached)

	_, ok := f.cache.Get(ctx, shafiKey)
	assert.True(t, ok)
}

func TestLookupRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, time.Hour)
	svc := f.c.Service()

	_, err := svc.GetPrayerTimes(context.Background(), testDay, models.Coordinates{Latitude: 95})
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)
	assert.Equal(t, calc.KindInvalidCoordinates, calc.KindOf(err))

	_, err = svc.GetPrayerTimes(context.Background(), models.Date{}, accra)
	assert.Error(t, err)
	assert.Equal(t, int64(0), f.calc.calls.Load())
}

func TestDebouncedRecompute(t *testing.T) {
	const window = 30 * time.Millisecond
	f := newFixture(t, window)
	ctx := context.Background()

	updates, cancel := f.c.SubscribeUpdates(4)
	defer cancel()
	changes, cancelChanges := f.c.SettingsChanges(4)
	defer cancelChanges()

	_, err := f.c.UpdateSettings(ctx, setMadhab(catalog.MadhabHanafi))
	require.NoError(t, err)
	_, err = f.c.UpdateSettings(ctx, func(s *models.SettingsSnapshot) { s.Method = catalog.MethodKarachi })
	require.NoError(t, err)
	final, err := f.c.UpdateSettings(ctx, func(s *models.SettingsSnapshot) { s.Method = catalog.MethodQatar })
	require.NoError(t, err)

	select {
	case snap := <-changes:
		assert.Equal(t, final.Version, snap.Version)
	case <-time.After(time.Second):
		t.Fatal("no settings change delivered")
	}

	select {
	case set := <-updates:
		assert.Equal(t, catalog.MethodQatar, set.Method)
		assert.Equal(t, catalog.MadhabHanafi, set.Madhab)
		assert.Equal(t, testDay, set.Date)
	case <-time.After(time.Second):
		t.Fatal("no recomputed times delivered")
	}

	select {
	case set := <-updates:
		t.Fatalf("burst produced a second update: %+v", set)
	case <-time.After(shortWait):
	}

	published, emitted := f.c.Bus().Stats()
	assert.Equal(t, uint64(3), published)
	assert.Equal(t, uint64(1), emitted)
	assert.Equal(t, int64(1), f.calc.calls.Load(), "intermediate settings are never computed")
}

func TestUpdatesIsShared(t *testing.T) {
	f := newFixture(t, time.Hour)
	ch := f.c.Updates()
	for i := 0; i < 5; i++ {
		assert.Equal(t, ch, f.c.Updates())
	}
	f.c.updates.mu.Lock()
	assert.Len(t, f.c.updates.subs, 1)
	f.c.updates.mu.Unlock()

	set, err := f.c.RecomputeToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, set.Date, (<-ch).Date)
}

func TestRecomputeWithoutLocation(t *testing.T) {
	f := newFixture(t, time.Hour, func(d *Deps) { d.Location = nil })
	_, err := f.c.RecomputeToday(context.Background())
	assert.ErrorIs(t, err, models.ErrLocationUnavailable)
}

func TestCloseDeliversPendingBurst(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, time.Hour)
		changes, _ := f.c.SettingsChanges(1)
		updates, _ := f.c.SubscribeUpdates(1)

		_, err := f.c.UpdateSettings(context.Background(), setMadhab(catalog.MadhabHanafi))
		require.NoError(t, err)
		assert.True(t, f.c.Bus().Pending())

		f.c.Close()
		assert.False(t, f.c.Bus().Pending(), "close flushes the pending burst")

		snap, ok := <-changes
		require.True(t, ok, "settings change was not handled before close")
		assert.Equal(t, catalog.MadhabHanafi, snap.Madhab)
		_, ok = <-changes
		assert.False(t, ok, "changes are closed after close")

		set, ok := <-updates
		require.True(t, ok, "recomputed set was not published before close")
		assert.Equal(t, catalog.MadhabHanafi, set.Madhab)
		assert.Equal(t, testDay, set.Date)
	}
}
