package calc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/mawaqit/internal/models"
)

// refineIterations is how many times event times are recomputed using the previous
// estimate for the sun's position.
const refineIterations = 2

// minFallbackLatitude is the lowest absolute latitude the nearest-latitude search tries.
const minFallbackLatitude = 60

var errNoDayNight = errors.New("sun does not rise or set")

// rawTimes holds event times in hours after 0h UT of the day.
type rawTimes struct {
	fajr, sunrise, dhuhr, asr, sunset, maghrib, isha float64
}

// Engine computes prayer times. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	fallbackLatitude float64
	elevation        float64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFallbackLatitude sets the absolute latitude beyond which the nearest-latitude
// fallback applies.
func WithFallbackLatitude(lat float64) EngineOption {
	return func(e *Engine) {
		if lat > 0 && lat < 90 {
			e.fallbackLatitude = lat
		}
	}
}

// WithElevation sets the observer's height above sea level in meters.
func WithElevation(meters float64) EngineOption {
	return func(e *Engine) {
		if meters > 0 {
			e.elevation = meters
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{fallbackLatitude: DefaultFallbackLatitude}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FallbackLatitude returns the configured fallback latitude.
func (e *Engine) FallbackLatitude() float64 {
	return e.fallbackLatitude
}

// Compute returns the five ordered prayer times for coords on date. The result's
// ComputedAt is left zero for the caller to stamp.
func (e *Engine) Compute(coords models.Coordinates, date models.Date, p EffectiveParameters) (models.PrayerTimeSet, error) {
	if err := coords.Validate(); err != nil {
		return models.PrayerTimeSet{}, NewError(KindInvalidCoordinates, err)
	}

	lat := coords.Latitude
	if math.Abs(lat) > e.fallbackLatitude {
		lat = math.Copysign(e.fallbackLatitude, lat)
	}

	set, err := e.computeAt(lat, coords, date, p)
	// Without a sunrise and sunset or an ordered day, walk toward the equator one
	// degree at a time. Below the polar circles every day has both.
	for next := math.Ceil(math.Abs(lat)) - 1; err != nil && next >= minFallbackLatitude; next-- {
		set, err = e.computeAt(math.Copysign(next, lat), coords, date, p)
	}
	if err != nil {
		return models.PrayerTimeSet{}, NewError(KindHighLatitudeUnresolvable,
			fmt.Errorf("%s on %s: %w", coords, date, err))
	}
	return set, nil
}

// computeAt computes the set for coords as if observed at latitude lat.
func (e *Engine) computeAt(lat float64, coords models.Coordinates, date models.Date, p EffectiveParameters) (models.PrayerTimeSet, error) {
	raw, err := e.computeRaw(lat, coords.Longitude, date, p)
	if err != nil {
		return models.PrayerTimeSet{}, err
	}

	base := date.UTC()
	set := models.PrayerTimeSet{
		Date:        date,
		Coordinates: coords,
		Method:      p.Method,
		Madhab:      p.Madhab,
		Sunrise:     toInstant(base, raw.sunrise),
		Sunset:      toInstant(base, raw.sunset),
	}
	for i, h := range []float64{raw.fajr, raw.dhuhr, raw.asr, raw.maghrib, raw.isha} {
		set.Times[i] = models.PrayerTime{Prayer: models.Prayers[i], Time: toInstant(base, h)}
	}
	if err := set.Validate(); err != nil {
		return models.PrayerTimeSet{}, err
	}
	return set, nil
}

func (e *Engine) computeRaw(lat, lng float64, date models.Date, p EffectiveParameters) (rawTimes, error) {
	day := solarDay{lat: lat, lng: lng, jd: julianDate(date), elevation: e.elevation}

	// Initial guesses are local solar hours shifted to UT.
	shift := lng / 15
	t := rawTimes{
		fajr:    5 - shift,
		sunrise: 6 - shift,
		dhuhr:   12 - shift,
		asr:     13 - shift,
		sunset:  18 - shift,
		maghrib: 18 - shift,
		isha:    18 - shift,
	}

	riseSet := day.riseSetAngle()
	var last rawTimes
	for i := 0; i < refineIterations; i++ {
		last = rawTimes{
			fajr:    day.sunAngleTime(p.FajrAngle, t.fajr, true),
			sunrise: day.sunAngleTime(riseSet, t.sunrise, true),
			dhuhr:   day.midday(t.dhuhr),
			asr:     day.asrTime(p.AsrShadowMultiplier, t.asr),
			sunset:  day.sunAngleTime(riseSet, t.sunset, false),
			maghrib: math.NaN(),
			isha:    math.NaN(),
		}
		if p.Maghrib.Astronomical() {
			last.maghrib = day.sunAngleTime(p.Maghrib.Angle, t.maghrib, false)
		}
		if !p.FixedIntervalIsha() {
			last.isha = day.sunAngleTime(p.IshaAngle, t.isha, false)
		}
		t = refine(t, last)
	}

	if math.IsNaN(last.sunrise) || math.IsNaN(last.sunset) || math.IsNaN(last.asr) {
		return rawTimes{}, errNoDayNight
	}

	final := last
	if !p.Maghrib.Astronomical() {
		final.maghrib = final.sunset + float64(p.Maghrib.DelayMinutes)/60
	}

	adjustHighLatitudes(&final, p, lat)

	if p.FixedIntervalIsha() {
		final.isha = final.maghrib + float64(p.IshaIntervalMinutes)/60
	}
	return final, nil
}

// refine takes next where defined and keeps the previous estimate otherwise, so an
// undefined event does not poison the following iteration.
func refine(prev, next rawTimes) rawTimes {
	pick := func(p, n float64) float64 {
		if math.IsNaN(n) {
			return p
		}
		return n
	}
	return rawTimes{
		fajr:    pick(prev.fajr, next.fajr),
		sunrise: pick(prev.sunrise, next.sunrise),
		dhuhr:   pick(prev.dhuhr, next.dhuhr),
		asr:     pick(prev.asr, next.asr),
		sunset:  pick(prev.sunset, next.sunset),
		maghrib: pick(prev.maghrib, next.maghrib),
		isha:    pick(prev.isha, next.isha),
	}
}

// toInstant converts hours after base to an instant rounded to the nearest minute.
func toInstant(base time.Time, hours float64) time.Time {
	return base.Add(time.Duration(hours * float64(time.Hour))).Round(time.Minute)
}
