package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/mawaqit/internal/location"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// DefaultAnnounceGrace is how long after a prayer starts it still counts as reached.
const DefaultAnnounceGrace = 10 * time.Minute

// notifiedTTL bounds how long announced prayers are remembered.
const notifiedTTL = 48 * time.Hour

// Status is the tracker's view of the prayer day at one instant.
type Status struct {
	At          time.Time          `json:"at"`
	Date        models.Date        `json:"date"`
	Current     *models.PrayerTime `json:"current,omitempty"`
	Next        models.PrayerTime  `json:"next"`
	NextDate    models.Date        `json:"next_date"`
	Remaining   time.Duration      `json:"remaining"`
	Stale       bool               `json:"stale"`
	Coordinates models.Coordinates `json:"coordinates"`
}

// Tracker answers which prayer is current and which comes next.
type Tracker struct {
	service  *Service
	location location.Provider
	zone     *time.Location
	now      func() time.Time
	grace    time.Duration

	mu       sync.Mutex
	notified map[string]time.Time // key = date|prayer
}

func newTracker(service *Service, loc location.Provider, zone *time.Location, now func() time.Time) *Tracker {
	return &Tracker{
		service:  service,
		location: loc,
		zone:     zone,
		now:      now,
		grace:    DefaultAnnounceGrace,
		notified: make(map[string]time.Time),
	}
}

// Service returns the shared Service.
func (t *Tracker) Service() *Service { return t.service }

// Status resolves the current and next prayer for the current location.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	coords, err := currentCoordinates(ctx, t.location)
	if err != nil {
		return Status{}, err
	}
	return t.StatusAt(ctx, coords, t.now())
}

// StatusAt resolves the current and next prayer at coords for instant now. Before
// Fajr the current prayer is the previous day's Isha; after Isha the next prayer
// is the following day's Fajr.
func (t *Tracker) StatusAt(ctx context.Context, coords models.Coordinates, now time.Time) (Status, error) {
	today := models.DateOf(now.In(t.zone))
	r, err := t.service.Lookup(ctx, today, coords)
	if err != nil {
		return Status{}, err
	}

	st := Status{At: now, Date: today, Stale: r.Stale, Coordinates: coords}

	if cur, ok := r.Set.Current(now); ok {
		st.Current = &cur
	} else if prev, err := t.service.Lookup(ctx, today.AddDays(-1), coords); err == nil {
		isha := prev.Set.Times[models.Isha]
		st.Current = &isha
	}

	if next, ok := r.Set.Next(now); ok {
		st.Next, st.NextDate = next, today
	} else {
		tomorrow := today.AddDays(1)
		nr, err := t.service.Lookup(ctx, tomorrow, coords)
		if err != nil {
			return Status{}, err
		}
		st.Next, st.NextDate = nr.Set.Times[models.Fajr], tomorrow
		st.Stale = st.Stale || nr.Stale
	}
	st.Remaining = st.Next.Time.Sub(now)
	return st, nil
}

// Reached returns the prayer that started within the announce grace period, if it
// has not been returned before. Callers poll it and announce what it yields.
func (t *Tracker) Reached(ctx context.Context) (models.PrayerTime, bool, error) {
	st, err := t.Status(ctx)
	if err != nil {
		return models.PrayerTime{}, false, err
	}
	if st.Current == nil {
		return models.PrayerTime{}, false, nil
	}
	cur := *st.Current
	if st.At.Sub(cur.Time) > t.grace {
		return models.PrayerTime{}, false, nil
	}

	key := models.DateOf(cur.Time.In(t.zone)).String() + "|" + cur.Prayer.String()

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, at := range t.notified {
		if st.At.Sub(at) > notifiedTTL {
			delete(t.notified, k)
		}
	}
	if _, seen := t.notified[key]; seen {
		return models.PrayerTime{}, false, nil
	}
	t.notified[key] = st.At
	return cur, true, nil
}
