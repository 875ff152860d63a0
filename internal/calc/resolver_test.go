package calc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

type fixedCalendar bool

func (f fixedCalendar) IsRamadan(models.Date) bool { return bool(f) }

func mustMethod(t *testing.T, id catalog.MethodID) catalog.Method {
	t.Helper()
	m, err := catalog.LookupMethod(id)
	if err != nil {
		t.Fatalf("LookupMethod(%d): %v", id, err)
	}
	return m
}

func mustMadhab(t *testing.T, id catalog.MadhabID) catalog.Madhab {
	t.Helper()
	m, err := catalog.LookupMadhab(id)
	if err != nil {
		t.Fatalf("LookupMadhab(%d): %v", id, err)
	}
	return m
}

func TestResolveAsrMultiplierFromMadhabOnly(t *testing.T) {
	for _, method := range catalog.Methods() {
		for _, madhab := range catalog.Madhabs() {
			p := Resolve(method, madhab, CalendarContext{}, Options{})
			if p.AsrShadowMultiplier != madhab.AsrShadowMultiplier {
				t.Errorf("%s/%s: multiplier %v, want %v", method.Key, madhab.Key, p.AsrShadowMultiplier, madhab.AsrShadowMultiplier)
			}
			if p.FajrAngle != method.FajrAngle {
				t.Errorf("%s/%s: fajr angle %v, want %v", method.Key, madhab.Key, p.FajrAngle, method.FajrAngle)
			}
		}
	}
}

func TestResolveIshaInterval(t *testing.T) {
	tests := []struct {
		method  catalog.MethodID
		ramadan bool
		want    int
	}{
		{catalog.MethodUmmAlQura, false, 90},
		{catalog.MethodUmmAlQura, true, 120},
		{catalog.MethodQatar, false, 90},
		{catalog.MethodQatar, true, 120},
		{catalog.MethodMuslimWorldLeague, false, 0},
		{catalog.MethodMuslimWorldLeague, true, 0},
	}
	shafi := mustMadhab(t, catalog.MadhabShafi)
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s ramadan=%v", tt.method, tt.ramadan), func(t *testing.T) {
			p := Resolve(mustMethod(t, tt.method), shafi, CalendarContext{IsRamadan: tt.ramadan}, Options{})
			if p.IshaIntervalMinutes != tt.want {
				t.Errorf("interval = %d, want %d", p.IshaIntervalMinutes, tt.want)
			}
			if p.FixedIntervalIsha() == (p.IshaAngle > 0) {
				t.Errorf("exactly one of angle and interval must be set: %+v", p)
			}
		})
	}
}

func TestResolveMaghrib(t *testing.T) {
	mwl := mustMethod(t, catalog.MethodMuslimWorldLeague)
	tests := []struct {
		name         string
		madhab       catalog.MadhabID
		astronomical bool
		want         MaghribAdjustment
	}{
		{"shafi", catalog.MadhabShafi, false, MaghribAdjustment{}},
		{"shafi ignores astronomical", catalog.MadhabShafi, true, MaghribAdjustment{}},
		{"jafari delay", catalog.MadhabJafari, false, MaghribAdjustment{DelayMinutes: 15}},
		{"jafari angle", catalog.MadhabJafari, true, MaghribAdjustment{Angle: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(mwl, mustMadhab(t, tt.madhab), CalendarContext{}, Options{AstronomicalMaghrib: tt.astronomical})
			if p.Maghrib != tt.want {
				t.Errorf("maghrib = %+v, want %+v", p.Maghrib, tt.want)
			}
		})
	}
}

func TestResolverForSettingsUsesCalendar(t *testing.T) {
	s := models.DefaultSettings()
	s.Method = catalog.MethodQatar

	p, _ := NewResolver(fixedCalendar(true)).ForSettings(s, models.NewDate(2024, 3, 25))
	if p.IshaIntervalMinutes != 120 {
		t.Errorf("ramadan interval = %d, want 120", p.IshaIntervalMinutes)
	}
	p, _ = NewResolver(nil).ForSettings(s, models.NewDate(2024, 3, 25))
	if p.IshaIntervalMinutes != 90 {
		t.Errorf("nil calendar interval = %d, want 90", p.IshaIntervalMinutes)
	}
}

func TestResolverForSettingsFallsBack(t *testing.T) {
	s := models.SettingsSnapshot{Method: 999, Madhab: 999}
	p, used := NewResolver(nil).ForSettings(s, models.NewDate(2024, 6, 21))
	if used.Method != catalog.DefaultMethod {
		t.Errorf("method = %s, want %s", used.Method, catalog.DefaultMethod)
	}
	if !used.Madhab.Valid() {
		t.Errorf("madhab %d not valid", used.Madhab)
	}
	if p.Method != used.Method || p.Madhab != used.Madhab {
		t.Errorf("params ids %s/%s differ from used settings %s/%s", p.Method, p.Madhab, used.Method, used.Madhab)
	}
}

func TestCalcErrorIs(t *testing.T) {
	err := fmt.Errorf("request: %w", NewError(KindHighLatitudeUnresolvable, errors.New("no order")))
	if !errors.Is(err, ErrHighLatitudeUnresolvable) {
		t.Error("expected errors.Is to match the kind sentinel")
	}
	if errors.Is(err, ErrCacheIO) {
		t.Error("unexpected match on another kind")
	}
	if KindOf(err) != KindHighLatitudeUnresolvable {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if !errors.Is(NewError(KindInvalidCoordinates, nil), models.ErrInvalidCoordinates) {
		t.Error("invalid coordinates kind should match models sentinel")
	}
}
