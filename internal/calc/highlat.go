package calc

import (
	"math"

	"github.com/rewired-gh/mawaqit/internal/catalog"
)

// autoRuleLatitude is where HighLatitudeAuto switches from middle-of-night to
// seventh-of-night capping.
const autoRuleLatitude = 48.0

// DefaultFallbackLatitude is the latitude past which times are computed as if at the
// nearest latitude with a regular day and night.
const DefaultFallbackLatitude = 65.0

// effectiveRule resolves HighLatitudeAuto for a latitude.
func effectiveRule(rule catalog.HighLatitudeRule, lat float64) catalog.HighLatitudeRule {
	if rule != catalog.HighLatitudeAuto {
		return rule
	}
	if math.Abs(lat) <= autoRuleLatitude {
		return catalog.HighLatitudeMiddleOfNight
	}
	return catalog.HighLatitudeSeventhOfNight
}

// nightPortion returns the longest allowed gap, in hours, between a twilight time and
// its sunrise or sunset base.
func nightPortion(rule catalog.HighLatitudeRule, angle, night float64) float64 {
	switch rule {
	case catalog.HighLatitudeTwilightAngle:
		return angle / 60 * night
	case catalog.HighLatitudeSeventhOfNight:
		return night / 7
	default:
		return night / 2
	}
}

// capTwilight clamps a twilight time t to at most portion hours from base. Times
// before sunrise pass before=true. An undefined t takes the clamped value.
func capTwilight(t, base, portion float64, before bool) float64 {
	var diff float64
	if before {
		diff = base - t
	} else {
		diff = t - base
	}
	if !math.IsNaN(t) && diff <= portion {
		return t
	}
	if before {
		return base - portion
	}
	return base + portion
}

// adjustHighLatitudes applies night-portion capping to the angle-based twilight times.
func adjustHighLatitudes(r *rawTimes, p EffectiveParameters, lat float64) {
	rule := effectiveRule(p.HighLatitudeRule, lat)
	night := 24 - (r.sunset - r.sunrise)

	r.fajr = capTwilight(r.fajr, r.sunrise, nightPortion(rule, p.FajrAngle, night), true)
	if !p.FixedIntervalIsha() {
		r.isha = capTwilight(r.isha, r.sunset, nightPortion(rule, p.IshaAngle, night), false)
	}
	if p.Maghrib.Astronomical() {
		// Maghrib's shallow angle always uses the angle-proportional portion, which keeps
		// it ahead of an Isha capped by any rule.
		portion := math.Min(nightPortion(rule, p.Maghrib.Angle, night), p.Maghrib.Angle/60*night)
		r.maghrib = capTwilight(r.maghrib, r.sunset, portion, false)
	}
}
