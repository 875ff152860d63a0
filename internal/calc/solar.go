package calc

import (
	"math"

	"github.com/rewired-gh/mawaqit/internal/models"
)

// refraction is the standard sunrise/sunset depression: atmospheric refraction plus
// the solar semi-diameter, in degrees.
const refraction = 0.833

func dtr(d float64) float64 { return d * math.Pi / 180 }
func rtd(r float64) float64 { return r * 180 / math.Pi }

func dsin(d float64) float64 { return math.Sin(dtr(d)) }
func dcos(d float64) float64 { return math.Cos(dtr(d)) }
func dtan(d float64) float64 { return math.Tan(dtr(d)) }

func darcsin(x float64) float64     { return rtd(math.Asin(x)) }
func darccos(x float64) float64     { return rtd(math.Acos(x)) }
func darctan2(y, x float64) float64 { return rtd(math.Atan2(y, x)) }
func darccot(x float64) float64     { return rtd(math.Atan(1 / x)) }

func fixAngle(a float64) float64 { return wrap(a, 360) }
func fixHour(h float64) float64  { return wrap(h, 24) }

func wrap(a, b float64) float64 {
	return a - b*math.Floor(a/b)
}

// julianDate returns the Julian date at 0h UT of d.
func julianDate(d models.Date) float64 {
	y, m := float64(d.Year), float64(d.Month)
	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + float64(d.Day) + b - 1524.5
}

type sunPosition struct {
	declination float64 // degrees
	equation    float64 // equation of time, hours
}

// solarPosition returns the sun's declination and the equation of time at Julian date jd.
func solarPosition(jd float64) sunPosition {
	d := jd - 2451545.0
	g := fixAngle(357.529 + 0.98560028*d)
	q := fixAngle(280.459 + 0.98564736*d)
	l := fixAngle(q + 1.915*dsin(g) + 0.020*dsin(2*g))
	e := 23.439 - 0.00000036*d

	ra := darctan2(dcos(e)*dsin(l), dcos(l)) / 15
	eqt := q/15 - fixHour(ra)
	// q and ra can sit on opposite sides of the 0/24 seam.
	switch {
	case eqt > 12:
		eqt -= 24
	case eqt < -12:
		eqt += 24
	}
	return sunPosition{
		declination: darcsin(dsin(e) * dsin(l)),
		equation:    eqt,
	}
}

// solarDay evaluates sun events for one location and day. All times are hours after
// 0h UT of the day and may fall outside [0, 24) for far east or west longitudes.
type solarDay struct {
	lat, lng  float64
	jd        float64
	elevation float64
}

func (s solarDay) position(t float64) sunPosition {
	return solarPosition(s.jd + t/24)
}

// riseSetAngle is the depression used for sunrise and sunset, including the horizon
// dip for an observer above sea level.
func (s solarDay) riseSetAngle() float64 {
	if s.elevation <= 0 {
		return refraction
	}
	return refraction + 0.0347*math.Sqrt(s.elevation)
}

// midday returns solar noon near UT hour t.
func (s solarDay) midday(t float64) float64 {
	eqt := s.position(t).equation
	return 12 - eqt - s.lng/15
}

// sunAngleTime returns when the sun is angle degrees below the horizon near t, before
// noon when ccw is set. It returns NaN if the sun never reaches that depression.
func (s solarDay) sunAngleTime(angle, t float64, ccw bool) float64 {
	decl := s.position(t).declination
	noon := s.midday(t)
	cosH := (-dsin(angle) - dsin(decl)*dsin(s.lat)) / (dcos(decl) * dcos(s.lat))
	if cosH < -1 || cosH > 1 || math.IsNaN(cosH) {
		return math.NaN()
	}
	h := darccos(cosH) / 15
	if ccw {
		return noon - h
	}
	return noon + h
}

// asrTime returns when an object's shadow equals factor times its length plus the noon shadow.
func (s solarDay) asrTime(factor, t float64) float64 {
	decl := s.position(t).declination
	angle := -darccot(factor + dtan(math.Abs(s.lat-decl)))
	return s.sunAngleTime(angle, t, false)
}
