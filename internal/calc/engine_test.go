package calc

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

var (
	sanFrancisco = models.Coordinates{Latitude: 37.7749, Longitude: -122.4194}
	qom          = models.Coordinates{Latitude: 34.6401, Longitude: 50.8764}
	mecca        = models.Coordinates{Latitude: 21.4225, Longitude: 39.8262}
	solstice     = models.NewDate(2024, 6, 21)
)

func params(t *testing.T, method catalog.MethodID, madhab catalog.MadhabID, cal CalendarContext, opts Options) EffectiveParameters {
	t.Helper()
	return Resolve(mustMethod(t, method), mustMadhab(t, madhab), cal, opts)
}

func compute(t *testing.T, e *Engine, c models.Coordinates, d models.Date, p EffectiveParameters) models.PrayerTimeSet {
	t.Helper()
	set, err := e.Compute(c, d, p)
	if err != nil {
		t.Fatalf("Compute(%s, %s): %v", c, d, err)
	}
	return set
}

func within(t *testing.T, name string, got time.Time, want time.Time, tol time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tol {
		t.Errorf("%s = %s, want %s ±%s", name, got.Format(time.RFC3339), want.Format(time.RFC3339), tol)
	}
}

func TestComputeSanFranciscoSolstice(t *testing.T) {
	e := NewEngine()
	set := compute(t, e, sanFrancisco, solstice, params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{}))

	if err := set.Validate(); err != nil {
		t.Fatalf("set not ordered: %v", err)
	}
	// PDT is UTC-7.
	pdt := time.FixedZone("PDT", -7*3600)
	tol := 3 * time.Minute
	within(t, "sunrise", set.Sunrise, time.Date(2024, 6, 21, 5, 48, 0, 0, pdt), tol)
	within(t, "dhuhr", set.Get(models.Dhuhr), time.Date(2024, 6, 21, 13, 12, 0, 0, pdt), tol)
	within(t, "maghrib", set.Get(models.Maghrib), time.Date(2024, 6, 21, 20, 35, 0, 0, pdt), tol)
	within(t, "fajr", set.Get(models.Fajr), time.Date(2024, 6, 21, 3, 53, 0, 0, pdt), 5*time.Minute)
	within(t, "isha", set.Get(models.Isha), time.Date(2024, 6, 21, 22, 22, 0, 0, pdt), 5*time.Minute)

	if set.Method != catalog.MethodMuslimWorldLeague || set.Madhab != catalog.MadhabShafi {
		t.Errorf("set ids = %s/%s", set.Method, set.Madhab)
	}
	if !set.ComputedAt.IsZero() {
		t.Error("engine must not stamp ComputedAt")
	}
}

func TestHanafiAsrIsLater(t *testing.T) {
	e := NewEngine()
	for _, c := range []models.Coordinates{sanFrancisco, qom, mecca, {Latitude: 51.5, Longitude: -0.12}, {Latitude: -33.87, Longitude: 151.2}} {
		for _, d := range []models.Date{models.NewDate(2024, 1, 15), models.NewDate(2024, 4, 15), solstice, models.NewDate(2024, 10, 1)} {
			t.Run(fmt.Sprintf("%s %s", c, d), func(t *testing.T) {
				shafi := compute(t, e, c, d, params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{}))
				hanafi := compute(t, e, c, d, params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabHanafi, CalendarContext{}, Options{}))

				diff := hanafi.Get(models.Asr).Sub(shafi.Get(models.Asr))
				if diff < 5*time.Minute || diff > 120*time.Minute {
					t.Errorf("hanafi - shafi asr = %s, want within [5m, 120m]", diff)
				}
				for _, p := range []models.Prayer{models.Fajr, models.Dhuhr, models.Maghrib, models.Isha} {
					if !hanafi.Get(p).Equal(shafi.Get(p)) {
						t.Errorf("%s changed with madhab: %s vs %s", p, hanafi.Get(p), shafi.Get(p))
					}
				}
			})
		}
	}
}

func TestJafariMaghribDelay(t *testing.T) {
	e := NewEngine()
	shafi := compute(t, e, qom, solstice, params(t, catalog.MethodTehran, catalog.MadhabShafi, CalendarContext{}, Options{}))
	jafari := compute(t, e, qom, solstice, params(t, catalog.MethodTehran, catalog.MadhabJafari, CalendarContext{}, Options{}))

	diff := jafari.Get(models.Maghrib).Sub(shafi.Get(models.Maghrib))
	if diff < 14*time.Minute || diff > 16*time.Minute {
		t.Errorf("jafari - shafi maghrib = %s, want 15m", diff)
	}
	if d := jafari.Get(models.Maghrib).Sub(jafari.Sunset); d < 14*time.Minute || d > 16*time.Minute {
		t.Errorf("jafari maghrib - sunset = %s, want 15m", d)
	}
}

func TestJafariAstronomicalMaghrib(t *testing.T) {
	e := NewEngine()
	delayed := compute(t, e, qom, solstice, params(t, catalog.MethodTehran, catalog.MadhabJafari, CalendarContext{}, Options{}))
	angled := compute(t, e, qom, solstice, params(t, catalog.MethodTehran, catalog.MadhabJafari, CalendarContext{}, Options{AstronomicalMaghrib: true}))

	afterSunset := angled.Get(models.Maghrib).Sub(angled.Sunset)
	if afterSunset <= 0 {
		t.Errorf("astronomical maghrib %s not after sunset %s", angled.Get(models.Maghrib), angled.Sunset)
	}
	if angled.Get(models.Maghrib).Equal(delayed.Get(models.Maghrib)) {
		t.Error("astronomical maghrib should differ from the fixed delay")
	}

	// The angle offset changes with latitude; the fixed delay does not.
	north := models.Coordinates{Latitude: 59.91, Longitude: 10.75}
	angledNorth := compute(t, e, north, solstice, params(t, catalog.MethodTehran, catalog.MadhabJafari, CalendarContext{}, Options{AstronomicalMaghrib: true}))
	if angledNorth.Get(models.Maghrib).Sub(angledNorth.Sunset) == afterSunset {
		t.Error("astronomical maghrib offset should vary with latitude")
	}
}

func TestFixedIntervalIsha(t *testing.T) {
	e := NewEngine()
	ramadanDay := models.NewDate(2024, 3, 25)
	tests := []struct {
		method  catalog.MethodID
		ramadan bool
		want    time.Duration
	}{
		{catalog.MethodUmmAlQura, false, 90 * time.Minute},
		{catalog.MethodUmmAlQura, true, 120 * time.Minute},
		{catalog.MethodQatar, false, 90 * time.Minute},
		{catalog.MethodQatar, true, 120 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s ramadan=%v", tt.method, tt.ramadan), func(t *testing.T) {
			cal := CalendarContext{Date: ramadanDay, IsRamadan: tt.ramadan}
			set := compute(t, e, mecca, ramadanDay, params(t, tt.method, catalog.MadhabShafi, cal, Options{}))
			if got := set.Get(models.Isha).Sub(set.Get(models.Maghrib)); got != tt.want {
				t.Errorf("isha - maghrib = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAngleMethodUnaffectedByRamadan(t *testing.T) {
	e := NewEngine()
	d := models.NewDate(2024, 3, 25)
	normal := compute(t, e, mecca, d, params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{Date: d}, Options{}))
	ramadan := compute(t, e, mecca, d, params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{Date: d, IsRamadan: true}, Options{}))
	if normal.Times != ramadan.Times {
		t.Errorf("times differ under ramadan:\n%v\n%v", normal.Times, ramadan.Times)
	}
}

func TestOrderingAcrossLatitudes(t *testing.T) {
	e := NewEngine()
	dates := []models.Date{
		models.NewDate(2024, 1, 1), models.NewDate(2024, 3, 20), solstice,
		models.NewDate(2024, 9, 22), models.NewDate(2024, 12, 21),
	}
	rules := []catalog.HighLatitudeRule{catalog.HighLatitudeAuto, catalog.HighLatitudeMiddleOfNight, catalog.HighLatitudeSeventhOfNight, catalog.HighLatitudeTwilightAngle}

	for lat := -89.0; lat <= 89; lat += 8 {
		for _, lng := range []float64{-179.5, -60, 0, 100, 179.9} {
			c := models.Coordinates{Latitude: lat, Longitude: lng}
			for _, d := range dates {
				for _, m := range catalog.Methods() {
					for _, mz := range catalog.Madhabs() {
						for _, rule := range rules {
							p := Resolve(m, mz, CalendarContext{Date: d}, Options{HighLatitudeRule: rule, AstronomicalMaghrib: rule == catalog.HighLatitudeTwilightAngle})
							set, err := e.Compute(c, d, p)
							if err != nil {
								t.Fatalf("%s %s %s/%s %s: %v", c, d, m.Key, mz.Key, rule, err)
							}
							if err := set.Validate(); err != nil {
								t.Fatalf("%s %s %s/%s %s: %v", c, d, m.Key, mz.Key, rule, err)
							}
						}
					}
				}
			}
		}
	}
}

func TestPolarLatitudeUsesNearestValidLatitude(t *testing.T) {
	e := NewEngine()
	p := params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{})
	winter := models.NewDate(2024, 12, 21)

	polar := compute(t, e, models.Coordinates{Latitude: 80, Longitude: 18.96}, winter, p)
	clamped := compute(t, e, models.Coordinates{Latitude: DefaultFallbackLatitude, Longitude: 18.96}, winter, p)
	if polar.Times != clamped.Times {
		t.Errorf("polar times should match the fallback latitude:\n%v\n%v", polar.Times, clamped.Times)
	}
	if polar.Coordinates.Latitude != 80 {
		t.Errorf("set should keep the requested coordinates, got %s", polar.Coordinates)
	}
}

func TestFallbackLatitudeOption(t *testing.T) {
	e := NewEngine(WithFallbackLatitude(60))
	if e.FallbackLatitude() != 60 {
		t.Fatalf("FallbackLatitude = %v", e.FallbackLatitude())
	}
	if NewEngine(WithFallbackLatitude(95)).FallbackLatitude() != DefaultFallbackLatitude {
		t.Error("out of range option should be ignored")
	}

	p := params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{})
	a := compute(t, e, models.Coordinates{Latitude: 63, Longitude: 10}, solstice, p)
	b := compute(t, e, models.Coordinates{Latitude: 60, Longitude: 10}, solstice, p)
	if a.Times != b.Times {
		t.Error("latitudes past the fallback should compute as the fallback latitude")
	}
}

func TestHighFallbackLatitudeSearchesTowardEquator(t *testing.T) {
	tromso := models.Coordinates{Latitude: 69.65, Longitude: 18.96}
	p := params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{})

	for _, fallback := range []float64{70, 75, 89} {
		e := NewEngine(WithFallbackLatitude(fallback))
		set := compute(t, e, tromso, solstice, p)
		if set.Coordinates != tromso {
			t.Errorf("fallback %v: set should keep the requested coordinates, got %s", fallback, set.Coordinates)
		}
	}
}

func TestHighFallbackLatitudeSweep(t *testing.T) {
	e := NewEngine(WithFallbackLatitude(89))
	opts := Options{AstronomicalMaghrib: true}
	dates := []models.Date{solstice, models.NewDate(2024, 12, 21), models.NewDate(2024, 3, 20)}
	madhabs := []catalog.MadhabID{catalog.MadhabShafi, catalog.MadhabHanafi, catalog.MadhabJafari}

	for lat := 60.0; lat <= 90; lat += 0.25 {
		for _, sign := range []float64{1, -1} {
			c := models.Coordinates{Latitude: sign * lat, Longitude: 18.96}
			for _, d := range dates {
				for _, mz := range madhabs {
					p := params(t, catalog.MethodMuslimWorldLeague, mz, CalendarContext{}, opts)
					if _, err := e.Compute(c, d, p); err != nil {
						t.Fatalf("%s %s %s: %v", c, d, mz, err)
					}
				}
			}
		}
	}
}

func TestElevationMovesSunriseEarlier(t *testing.T) {
	p := params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{})
	flat := compute(t, NewEngine(), sanFrancisco, solstice, p)
	high := compute(t, NewEngine(WithElevation(2000)), sanFrancisco, solstice, p)
	if !high.Sunrise.Before(flat.Sunrise) {
		t.Errorf("elevated sunrise %s not before %s", high.Sunrise, flat.Sunrise)
	}
	if !high.Sunset.After(flat.Sunset) {
		t.Errorf("elevated sunset %s not after %s", high.Sunset, flat.Sunset)
	}
}

func TestComputeInvalidCoordinates(t *testing.T) {
	p := params(t, catalog.MethodMuslimWorldLeague, catalog.MadhabShafi, CalendarContext{}, Options{})
	for _, c := range []models.Coordinates{{Latitude: 91}, {Longitude: 200}, {Latitude: math.NaN()}} {
		_, err := NewEngine().Compute(c, solstice, p)
		if KindOf(err) != KindInvalidCoordinates {
			t.Errorf("%s: err = %v, want InvalidCoordinates", c, err)
		}
		if !errors.Is(err, models.ErrInvalidCoordinates) {
			t.Errorf("%s: err should wrap ErrInvalidCoordinates", c)
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	e := NewEngine()
	p := params(t, catalog.MethodKarachi, catalog.MadhabHanafi, CalendarContext{}, Options{})
	a := compute(t, e, qom, solstice, p)
	b := compute(t, e, qom, solstice, p)
	if a.Times != b.Times || !a.Sunrise.Equal(b.Sunrise) {
		t.Error("identical inputs produced different times")
	}
}

func TestSolarPositionKnownValues(t *testing.T) {
	// Near the June solstice declination peaks around +23.44 degrees.
	pos := solarPosition(julianDate(solstice) + 0.5)
	if math.Abs(pos.declination-23.44) > 0.05 {
		t.Errorf("declination = %v", pos.declination)
	}
	// The equation of time is within about 17 minutes all year.
	for i := 0; i < 366; i += 5 {
		p := solarPosition(julianDate(models.NewDate(2024, 1, 1).AddDays(i)))
		if math.Abs(p.equation) > 0.3 {
			t.Errorf("day %d: equation of time %v hours", i, p.equation)
		}
	}
}
