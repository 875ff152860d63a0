package catalog

import (
	"fmt"
	"strings"
)

// HighLatitudeRule selects how Fajr and Isha are bounded when twilight lasts
// most of the night, or never ends.
type HighLatitudeRule int

const (
	// HighLatitudeAuto uses MiddleOfNight up to 48° and SeventhOfNight beyond.
	HighLatitudeAuto HighLatitudeRule = iota
	HighLatitudeMiddleOfNight
	HighLatitudeSeventhOfNight
	HighLatitudeTwilightAngle
)

var highLatitudeNames = map[HighLatitudeRule]string{
	HighLatitudeAuto:           "auto",
	HighLatitudeMiddleOfNight:  "middle_of_night",
	HighLatitudeSeventhOfNight: "seventh_of_night",
	HighLatitudeTwilightAngle:  "twilight_angle",
}

func (r HighLatitudeRule) String() string {
	if s, ok := highLatitudeNames[r]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether r is a known rule.
func (r HighLatitudeRule) Valid() bool {
	_, ok := highLatitudeNames[r]
	return ok
}

// ParseHighLatitudeRule parses a rule name.
func ParseHighLatitudeRule(s string) (HighLatitudeRule, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return HighLatitudeAuto, nil
	}
	for r, name := range highLatitudeNames {
		if name == s {
			return r, nil
		}
	}
	return HighLatitudeAuto, fmt.Errorf("unknown high latitude rule %q", s)
}
