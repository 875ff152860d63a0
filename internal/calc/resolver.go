// Package calc resolves calculation parameters and computes daily prayer times.
//
// Parameter resolution merges a calculation method, a madhab and the calendar
// context into one EffectiveParameters value:
//
//   - Asr shadow multiplier comes only from the madhab.
//   - Maghrib is sunset, sunset plus the madhab's delay, or (astronomical mode)
//     the time the sun reaches the madhab's Maghrib angle.
//   - Fajr and Isha angles come from the method. Fixed-interval methods place Isha a
//     fixed number of minutes after Maghrib, with a per-method Ramadan override.
//
// The Engine turns coordinates, a date and EffectiveParameters into five ordered
// prayer instants, applying a high-latitude policy where twilight never ends.
package calc

import (
	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// CalendarContext is the calendar information that can change parameters for a date.
type CalendarContext struct {
	Date      models.Date
	IsRamadan bool
}

// RamadanCalendar answers whether a date is within Ramadan.
type RamadanCalendar interface {
	IsRamadan(date models.Date) bool
}

// MaghribAdjustment describes how Maghrib is derived from sunset.
// A positive Angle means astronomical Maghrib; otherwise DelayMinutes is added to sunset.
type MaghribAdjustment struct {
	DelayMinutes int
	Angle        float64
}

// Astronomical reports whether Maghrib is angle based.
func (m MaghribAdjustment) Astronomical() bool {
	return m.Angle > 0
}

// EffectiveParameters is the fully resolved input to the Engine.
type EffectiveParameters struct {
	Method              catalog.MethodID
	Madhab              catalog.MadhabID
	FajrAngle           float64
	IshaAngle           float64
	IshaIntervalMinutes int
	AsrShadowMultiplier float64
	Maghrib             MaghribAdjustment
	HighLatitudeRule    catalog.HighLatitudeRule
}

// FixedIntervalIsha reports whether Isha is placed a fixed interval after Maghrib.
func (p EffectiveParameters) FixedIntervalIsha() bool {
	return p.IshaIntervalMinutes > 0
}

// Options carries user toggles that take part in resolution.
type Options struct {
	AstronomicalMaghrib bool
	HighLatitudeRule    catalog.HighLatitudeRule
}

// Resolve merges method, madhab and calendar context into effective parameters.
func Resolve(method catalog.Method, madhab catalog.Madhab, cal CalendarContext, opts Options) EffectiveParameters {
	p := EffectiveParameters{
		Method:              method.ID,
		Madhab:              madhab.ID,
		FajrAngle:           method.FajrAngle,
		AsrShadowMultiplier: madhab.AsrShadowMultiplier,
		HighLatitudeRule:    opts.HighLatitudeRule,
	}

	if method.FixedInterval() {
		p.IshaIntervalMinutes = method.IshaInterval(cal.IsRamadan)
	} else {
		p.IshaAngle = method.IshaAngle
	}

	if madhab.DelaysMaghrib() {
		if opts.AstronomicalMaghrib && madhab.MaghribAngle > 0 {
			p.Maghrib = MaghribAdjustment{Angle: madhab.MaghribAngle}
		} else {
			p.Maghrib = MaghribAdjustment{DelayMinutes: madhab.MaghribDelayMinutes}
		}
	}

	return p
}

// Resolver binds parameter resolution to a Ramadan calendar.
type Resolver struct {
	calendar RamadanCalendar
}

// NewResolver creates a Resolver. A nil calendar treats every day as outside Ramadan.
func NewResolver(calendar RamadanCalendar) *Resolver {
	return &Resolver{calendar: calendar}
}

// Context builds the CalendarContext for date.
func (r *Resolver) Context(date models.Date) CalendarContext {
	ctx := CalendarContext{Date: date}
	if r.calendar != nil {
		ctx.IsRamadan = r.calendar.IsRamadan(date)
	}
	return ctx
}

// ForSettings resolves parameters for a settings snapshot and date. Unknown method or
// madhab ids are replaced by defaults; the returned snapshot is the one actually used.
func (r *Resolver) ForSettings(s models.SettingsSnapshot, date models.Date) (EffectiveParameters, models.SettingsSnapshot) {
	return r.ForContext(s, r.Context(date))
}

// ForContext is ForSettings with the calendar context supplied by the caller.
func (r *Resolver) ForContext(s models.SettingsSnapshot, cal CalendarContext) (EffectiveParameters, models.SettingsSnapshot) {
	normalized, changed := s.Normalize()
	if changed {
		logger.Warn("%v: settings method=%d madhab=%d, using method=%s madhab=%s",
			ErrUnknownMethodOrMadhab, int(s.Method), int(s.Madhab), normalized.Method, normalized.Madhab)
	}

	method, _ := catalog.LookupMethod(normalized.Method)
	madhab, _ := catalog.LookupMadhab(normalized.Madhab)

	params := Resolve(method, madhab, cal, Options{
		AstronomicalMaghrib: normalized.UseAstronomicalMaghrib,
		HighLatitudeRule:    normalized.HighLatitudeRule,
	})
	return params, normalized
}
