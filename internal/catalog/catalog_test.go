package catalog

import (
	"errors"
	"testing"
)

func TestMadhabAsrMultipliers(t *testing.T) {
	for _, m := range Madhabs() {
		want := 1.0
		if m.ID == MadhabHanafi {
			want = 2.0
		}
		if m.AsrShadowMultiplier != want {
			t.Errorf("%s multiplier = %v, want %v", m.Key, m.AsrShadowMultiplier, want)
		}
	}
}

func TestOnlyJafariDelaysMaghrib(t *testing.T) {
	for _, m := range Madhabs() {
		if m.DelaysMaghrib() != (m.ID == MadhabJafari) {
			t.Errorf("%s DelaysMaghrib = %v", m.Key, m.DelaysMaghrib())
		}
	}
	j, _ := LookupMadhab(MadhabJafari)
	if j.MaghribDelayMinutes != 15 || j.MaghribAngle != 4.0 {
		t.Errorf("unexpected Jafari maghrib parameters: %+v", j)
	}
}

func TestIshaInterval(t *testing.T) {
	tests := []struct {
		name    string
		method  MethodID
		ramadan bool
		want    int
	}{
		{"umm al-qura normal", MethodUmmAlQura, false, 90},
		{"umm al-qura ramadan", MethodUmmAlQura, true, 120},
		{"qatar normal", MethodQatar, false, 90},
		{"qatar ramadan", MethodQatar, true, 120},
		{"mwl ignores ramadan", MethodMuslimWorldLeague, true, 0},
		{"isna", MethodNorthAmerica, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LookupMethod(tt.method)
			if err != nil {
				t.Fatal(err)
			}
			if got := m.IshaInterval(tt.ramadan); got != tt.want {
				t.Errorf("IshaInterval(%v) = %d, want %d", tt.ramadan, got, tt.want)
			}
		})
	}
}

func TestRamadanOverrideOnlyOnFixedIntervalMethods(t *testing.T) {
	for _, m := range Methods() {
		if m.RamadanIshaIntervalMinutes > 0 && !m.FixedInterval() {
			t.Errorf("%s has a Ramadan interval but is angle based", m.Key)
		}
		if !m.FixedInterval() && m.IshaAngle <= 0 {
			t.Errorf("%s has neither an isha angle nor an interval", m.Key)
		}
		if m.FajrAngle <= 0 {
			t.Errorf("%s has no fajr angle", m.Key)
		}
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    MethodID
		wantErr bool
	}{
		{"mwl", MethodMuslimWorldLeague, false},
		{"UMM_AL_QURA", MethodUmmAlQura, false},
		{"7", MethodQatar, false},
		{"Muslim World League", MethodMuslimWorldLeague, false},
		{"99", 0, true},
		{"nope", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownMethod) {
			t.Errorf("ParseMethod(%q) error should wrap ErrUnknownMethod: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMadhab(t *testing.T) {
	if id, err := ParseMadhab("Hanafi"); err != nil || id != MadhabHanafi {
		t.Errorf("ParseMadhab(Hanafi) = %v, %v", id, err)
	}
	if _, err := ParseMadhab("0"); !errors.Is(err, ErrUnknownMadhab) {
		t.Errorf("expected ErrUnknownMadhab, got %v", err)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := LookupMethod(MethodID(0)); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("expected ErrUnknownMethod, got %v", err)
	}
	if _, err := LookupMadhab(MadhabID(42)); !errors.Is(err, ErrUnknownMadhab) {
		t.Errorf("expected ErrUnknownMadhab, got %v", err)
	}
	if MethodID(42).String() != "method(42)" {
		t.Errorf("unexpected String for unknown method: %s", MethodID(42))
	}
}

func TestParseHighLatitudeRule(t *testing.T) {
	for _, r := range []HighLatitudeRule{HighLatitudeAuto, HighLatitudeMiddleOfNight, HighLatitudeSeventhOfNight, HighLatitudeTwilightAngle} {
		got, err := ParseHighLatitudeRule(r.String())
		if err != nil || got != r {
			t.Errorf("round trip of %v gave %v, %v", r, got, err)
		}
	}
	if _, err := ParseHighLatitudeRule("polar"); err == nil {
		t.Error("expected error for unknown rule")
	}
}
