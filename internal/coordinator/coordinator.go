// Package coordinator keeps settings, cache and calculation in sync.
//
// The Coordinator owns the settings snapshot. All mutations go through
// UpdateSettings, which applies them one at a time on a single owner goroutine,
// persists the result and publishes it to the debounced settings bus. When a burst
// of mutations settles, the coordinator recomputes today's times for the current
// location and pushes them to update subscribers.
//
// Calculation is served by exactly one Service. The refresh job, task manager,
// tracker and view model are built by the coordinator around that same instance, so
// they can never observe different settings or caches.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/mawaqit/internal/bus"
	"github.com/rewired-gh/mawaqit/internal/calc"
	"github.com/rewired-gh/mawaqit/internal/location"
	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
	"github.com/rewired-gh/mawaqit/internal/storage"
)

var (
	// ErrClosed is returned by UpdateSettings after Close.
	ErrClosed = errors.New("coordinator closed")
	// ErrInvalidSettings wraps validation failures of a settings mutation.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Deps are the collaborators of a Coordinator. Only Location is required for
// recomputation; nil fields get working defaults.
type Deps struct {
	Settings   storage.SettingsStore
	Cache      *storage.MultiTier
	Calculator Calculator
	Calendar   calc.RamadanCalendar
	Location   location.Provider
	Bus        *bus.Bus

	// Precision is the number of coordinate decimals in cache keys.
	Precision int
	// RefreshDays is how many days after today the refresh job precomputes.
	RefreshDays     int
	RefreshInterval time.Duration
	// Zone decides which calendar day is "today". Defaults to time.Local.
	Zone  *time.Location
	Clock func() time.Time
}

type updateRequest struct {
	mutate func(*models.SettingsSnapshot)
	reply  chan updateResult
}

type updateResult struct {
	snapshot models.SettingsSnapshot
	err      error
}

// Coordinator is the single owner of settings and the shared Service.
type Coordinator struct {
	store    storage.SettingsStore
	bus      *bus.Bus
	ownsBus  bool
	location location.Provider
	calendar calc.RamadanCalendar
	zone     *time.Location
	now      func() time.Time

	service *Service
	refresh *RefreshJob
	tasks   *TaskManager
	tracker *Tracker
	view    *ViewModel

	mu       sync.RWMutex
	settings models.SettingsSnapshot

	requests chan updateRequest
	done     chan struct{}
	exited   chan struct{}

	updates     *broadcaster[models.PrayerTimeSet]
	changes     *broadcaster[models.SettingsSnapshot]
	unsubscribe func()

	updatesOnce sync.Once
	updatesCh   <-chan models.PrayerTimeSet

	startMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// New loads the persisted settings, normalizes them and wires the shared Service
// and its consumers.
func New(deps Deps) (*Coordinator, error) {
	if deps.Settings == nil {
		deps.Settings = storage.NewMemorySettingsStore()
	}
	if deps.Cache == nil {
		deps.Cache = storage.NewMultiTier(nil, nil)
	}
	if deps.Calculator == nil {
		deps.Calculator = calc.NewEngine()
	}
	if deps.Precision <= 0 {
		deps.Precision = storage.DefaultPrecision
	}
	if deps.Zone == nil {
		deps.Zone = time.Local
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	c := &Coordinator{
		store:    deps.Settings,
		bus:      deps.Bus,
		location: deps.Location,
		calendar: deps.Calendar,
		zone:     deps.Zone,
		now:      deps.Clock,
		requests: make(chan updateRequest),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		updates:  newBroadcaster[models.PrayerTimeSet](),
		changes:  newBroadcaster[models.SettingsSnapshot](),
	}
	if c.bus == nil {
		c.bus = bus.New(bus.DefaultWindow)
		c.ownsBus = true
	}

	snap, err := c.store.Load()
	if err != nil {
		logger.Warn("Failed to load settings, using defaults: %v", err)
		snap = models.DefaultSettings()
	}
	normalized, changed := snap.Normalize()
	if changed {
		logger.Warn("%v: stored method=%d madhab=%d, using method=%s madhab=%s",
			calc.ErrUnknownMethodOrMadhab, int(snap.Method), int(snap.Madhab), normalized.Method, normalized.Madhab)
	}
	c.settings = normalized

	c.service = newService(deps.Calculator, calc.NewResolver(deps.Calendar), deps.Cache, c.Settings, deps.Precision, c.now)
	c.refresh = newRefreshJob(c.service, c.location, c.Today, deps.RefreshDays, deps.RefreshInterval)
	c.tasks = newTaskManager(c.service, c.refresh, c.SettingsChanges)
	c.tracker = newTracker(c.service, c.location, c.zone, c.now)
	c.view = newViewModel(c.service, c.location, c.calendar, c.zone, c.Today)

	c.unsubscribe = c.bus.Subscribe("coordinator", c.onSettled)
	go c.run()

	logger.Info("Coordinator ready (method=%s, madhab=%s, version=%d)",
		normalized.Method, normalized.Madhab, normalized.Version)
	return c, nil
}

// Settings returns the current settings snapshot.
func (c *Coordinator) Settings() models.SettingsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// UpdateSettings applies mutate to a copy of the current settings on the owner
// goroutine. The result is validated, versioned, persisted and published to the bus.
// It returns the snapshot now in effect.
func (c *Coordinator) UpdateSettings(ctx context.Context, mutate func(*models.SettingsSnapshot)) (models.SettingsSnapshot, error) {
	req := updateRequest{mutate: mutate, reply: make(chan updateResult, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return models.SettingsSnapshot{}, ErrClosed
	case <-ctx.Done():
		return models.SettingsSnapshot{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return models.SettingsSnapshot{}, ctx.Err()
	}
}

func (c *Coordinator) run() {
	defer close(c.exited)
	for {
		select {
		case req := <-c.requests:
			snap, err := c.apply(req.mutate)
			req.reply <- updateResult{snapshot: snap, err: err}
		case <-c.done:
			return
		}
	}
}

// apply runs only on the owner goroutine.
func (c *Coordinator) apply(mutate func(*models.SettingsSnapshot)) (models.SettingsSnapshot, error) {
	current := c.Settings()
	next := current
	mutate(&next)

	next.Version = current.Version + 1
	next.UpdatedAt = c.now()
	if err := next.Validate(); err != nil {
		return current, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	c.mu.Lock()
	c.settings = next
	c.mu.Unlock()

	log := logger.With("coordinator")
	if err := c.store.Save(next); err != nil {
		log.Error().Err(err).Uint64("version", next.Version).Msg("failed to persist settings")
	}
	if err := c.bus.Publish(next); err != nil {
		log.Warn().Err(err).Uint64("version", next.Version).Msg("failed to publish settings")
	}
	log.Debug().
		Uint64("version", next.Version).
		Str("method", next.Method.String()).
		Str("madhab", next.Madhab.String()).
		Msg("settings updated")
	return next, nil
}

// onSettled handles one debounced settings event.
func (c *Coordinator) onSettled(ctx context.Context, ev bus.Event) error {
	c.changes.publish(ev.Snapshot)

	set, err := c.RecomputeToday(ctx)
	if err != nil {
		return fmt.Errorf("recompute after settings event %s: %w", ev.ID, err)
	}
	log := logger.With("coordinator")
	log.Info().
		Str("event", ev.ID).
		Int("mutations", ev.Mutations).
		Str("date", set.Date.String()).
		Msg("recomputed prayer times after settings change")
	return nil
}

// RecomputeToday looks up today's times for the current location and publishes them
// to update subscribers.
func (c *Coordinator) RecomputeToday(ctx context.Context) (models.PrayerTimeSet, error) {
	coords, err := currentCoordinates(ctx, c.location)
	if err != nil {
		return models.PrayerTimeSet{}, err
	}
	set, err := c.service.GetPrayerTimes(ctx, c.Today(), coords)
	if err != nil {
		return models.PrayerTimeSet{}, err
	}
	c.updates.publish(set)
	return set, nil
}

// SubscribeUpdates returns a channel of recomputed sets. When buffer is full the
// oldest set is dropped. cancel unsubscribes and closes the channel.
func (c *Coordinator) SubscribeUpdates(buffer int) (<-chan models.PrayerTimeSet, func()) {
	return c.updates.subscribe(buffer)
}

// Updates returns a shared single-slot update channel that lives until Close. Every
// call returns the same channel; use SubscribeUpdates for independent readers.
func (c *Coordinator) Updates() <-chan models.PrayerTimeSet {
	c.updatesOnce.Do(func() {
		c.updatesCh, _ = c.updates.subscribe(1)
	})
	return c.updatesCh
}

// SettingsChanges returns a channel receiving every settled settings snapshot.
func (c *Coordinator) SettingsChanges(buffer int) (<-chan models.SettingsSnapshot, func()) {
	return c.changes.subscribe(buffer)
}

// Today returns the current calendar day in the coordinator's zone.
func (c *Coordinator) Today() models.Date {
	return models.DateOf(c.now().In(c.zone))
}

// Zone returns the zone used for "today" and local formatting.
func (c *Coordinator) Zone() *time.Location {
	return c.zone
}

// Service returns the shared calculation service.
func (c *Coordinator) Service() *Service { return c.service }

// RefreshJob returns the background refresh job.
func (c *Coordinator) RefreshJob() *RefreshJob { return c.refresh }

// TaskManager returns the settings-driven task manager.
func (c *Coordinator) TaskManager() *TaskManager { return c.tasks }

// Tracker returns the current/next prayer tracker.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// ViewModel returns the presentation model.
func (c *Coordinator) ViewModel() *ViewModel { return c.view }

// Bus returns the settings bus.
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// Start runs the refresh job and task manager until ctx is done or Close is called.
// Calling Start again has no effect.
func (c *Coordinator) Start(ctx context.Context) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.refresh.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.tasks.Run(ctx)
	}()
}

// Close delivers any pending settings burst, stops background work and releases
// subscribers. The cache and settings store are left to their owners.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.exited

		c.bus.Flush()
		if c.ownsBus {
			c.bus.Close()
		}
		c.unsubscribe()

		c.startMu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.startMu.Unlock()
		c.wg.Wait()

		c.updates.close()
		c.changes.close()
	})
}

func currentCoordinates(ctx context.Context, p location.Provider) (models.Coordinates, error) {
	if p == nil {
		return models.Coordinates{}, calc.NewError(calc.KindLocationUnavailable, errors.New("no location provider"))
	}
	coords, err := p.CurrentCoordinates(ctx)
	if err != nil {
		return models.Coordinates{}, calc.NewError(calc.KindLocationUnavailable, err)
	}
	return coords, nil
}
