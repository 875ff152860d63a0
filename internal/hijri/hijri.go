// Package hijri converts Gregorian days to the tabular (arithmetical) Islamic calendar
// and answers whether a day falls inside Ramadan.
//
// The tabular calendar can differ from sighting-based calendars by a day or two, so a
// Calendar carries a configurable day offset.
package hijri

import (
	"fmt"

	"github.com/rewired-gh/mawaqit/internal/models"
)

// Ramadan is the ninth Hijri month.
const Ramadan = 9

// civilEpoch is the Julian day number of 1 Muharram 1 AH (civil reckoning).
const civilEpoch = 1948440

var monthNames = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani",
	"Jumada al-Ula", "Jumada al-Akhirah", "Rajab", "Sha'ban",
	"Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

// Date is a day in the Hijri calendar.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// MonthName returns the transliterated month name.
func (d Date) MonthName() string {
	if d.Month < 1 || d.Month > 12 {
		return ""
	}
	return monthNames[d.Month-1]
}

// String formats the date as "DD MonthName YYYY AH".
func (d Date) String() string {
	return fmt.Sprintf("%d %s %d AH", d.Day, d.MonthName(), d.Year)
}

// julianDayNumber returns the Julian day number of a Gregorian calendar day.
func julianDayNumber(d models.Date) int {
	a := (14 - int(d.Month)) / 12
	y := d.Year + 4800 - a
	m := int(d.Month) + 12*a - 3
	return d.Day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

// FromGregorian converts a Gregorian day to the tabular Hijri calendar.
func FromGregorian(d models.Date) Date {
	l := julianDayNumber(d) - civilEpoch + 10632
	n := (l - 1) / 10631
	l = l - 10631*n + 354
	j := ((10985-l)/5316)*((50*l)/17719) + (l/5670)*((43*l)/15238)
	l = l - ((30-j)/15)*((17719*j)/50) - (j/16)*((15238*j)/43) + 29
	month := (24 * l) / 709
	day := l - (709*month)/24
	year := 30*n + j - 30
	return Date{Year: year, Month: month, Day: day}
}

// Calendar answers Hijri questions for Gregorian days, shifted by Offset days.
type Calendar struct {
	Offset int
}

// New returns a Calendar with the given sighting offset in days.
func New(offset int) *Calendar {
	return &Calendar{Offset: offset}
}

// ToHijri converts d applying the calendar offset.
func (c *Calendar) ToHijri(d models.Date) Date {
	return FromGregorian(d.AddDays(c.Offset))
}

// IsRamadan reports whether d falls within Ramadan.
func (c *Calendar) IsRamadan(d models.Date) bool {
	return c.ToHijri(d).Month == Ramadan
}
