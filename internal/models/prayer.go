package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/mawaqit/internal/catalog"
)

// Prayer is one of the five daily prayers, ordered as they occur in a day.
type Prayer int

const (
	Fajr Prayer = iota
	Dhuhr
	Asr
	Maghrib
	Isha
)

// Prayers lists the five prayers in daily order.
var Prayers = [5]Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

var prayerNames = [5]string{"fajr", "dhuhr", "asr", "maghrib", "isha"}

func (p Prayer) String() string {
	if p < Fajr || p > Isha {
		return "unknown"
	}
	return prayerNames[p]
}

// ParsePrayer parses a prayer name case-insensitively.
func ParsePrayer(s string) (Prayer, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range prayerNames {
		if name == s {
			return Prayer(i), nil
		}
	}
	return 0, fmt.Errorf("unknown prayer %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Prayer) MarshalText() ([]byte, error) {
	if p < Fajr || p > Isha {
		return nil, fmt.Errorf("invalid prayer %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Prayer) UnmarshalText(b []byte) error {
	parsed, err := ParsePrayer(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PrayerTime is the start instant of one prayer.
type PrayerTime struct {
	Prayer Prayer    `json:"prayer"`
	Time   time.Time `json:"time"`
}

// PrayerTimeSet is one computed day of prayer times for a location and settings pair.
// Sunrise and Sunset are reference instants and are not part of the ordered five.
type PrayerTimeSet struct {
	Date        Date             `json:"date"`
	Coordinates Coordinates      `json:"coordinates"`
	Method      catalog.MethodID `json:"method_id"`
	Madhab      catalog.MadhabID `json:"madhab_id"`
	Times       [5]PrayerTime    `json:"times"`
	Sunrise     time.Time        `json:"sunrise"`
	Sunset      time.Time        `json:"sunset"`
	ComputedAt  time.Time        `json:"computed_at"`
}

// Validate checks the set holds the five prayers in order with strictly increasing times.
func (s *PrayerTimeSet) Validate() error {
	for i, pt := range s.Times {
		if pt.Prayer != Prayers[i] {
			return fmt.Errorf("slot %d holds %s, want %s", i, pt.Prayer, Prayers[i])
		}
		if pt.Time.IsZero() {
			return fmt.Errorf("%s time must be set", pt.Prayer)
		}
		if i > 0 && !pt.Time.After(s.Times[i-1].Time) {
			return fmt.Errorf("%s (%s) must be after %s (%s)",
				pt.Prayer, pt.Time.Format(time.RFC3339), s.Times[i-1].Prayer, s.Times[i-1].Time.Format(time.RFC3339))
		}
	}
	if s.Date.IsZero() {
		return errors.New("date must be set")
	}
	return nil
}

// Get returns the time of prayer p.
func (s *PrayerTimeSet) Get(p Prayer) time.Time {
	if p < Fajr || p > Isha {
		return time.Time{}
	}
	return s.Times[p].Time
}

// Next returns the first prayer starting after now, if any remain in this day.
func (s *PrayerTimeSet) Next(now time.Time) (PrayerTime, bool) {
	for _, pt := range s.Times {
		if pt.Time.After(now) {
			return pt, true
		}
	}
	return PrayerTime{}, false
}

// Current returns the latest prayer whose time has started at now.
func (s *PrayerTimeSet) Current(now time.Time) (PrayerTime, bool) {
	for i := len(s.Times) - 1; i >= 0; i-- {
		if !s.Times[i].Time.After(now) {
			return s.Times[i], true
		}
	}
	return PrayerTime{}, false
}

// DisclaimerLevel grades confidence in times computed for dates far from today.
type DisclaimerLevel int

const (
	DisclaimerToday DisclaimerLevel = iota
	DisclaimerShortTerm
	DisclaimerMediumTerm
	DisclaimerLongTerm
)

func (l DisclaimerLevel) String() string {
	switch l {
	case DisclaimerToday:
		return "today"
	case DisclaimerShortTerm:
		return "short_term"
	case DisclaimerMediumTerm:
		return "medium_term"
	default:
		return "long_term"
	}
}

// DisclaimerFor grades date relative to today: same day, within 30 days,
// within a year, or beyond.
func DisclaimerFor(date, today Date) DisclaimerLevel {
	days := today.DaysUntil(date)
	if days < 0 {
		days = -days
	}
	switch {
	case days == 0:
		return DisclaimerToday
	case days <= 30:
		return DisclaimerShortTerm
	case days <= 365:
		return DisclaimerMediumTerm
	default:
		return DisclaimerLongTerm
	}
}
