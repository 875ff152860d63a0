package hijri

import (
	"testing"

	"github.com/rewired-gh/mawaqit/internal/models"
)

func TestFromGregorian(t *testing.T) {
	tests := []struct {
		name string
		in   models.Date
		want Date
	}{
		{"mid ramadan 1445", models.NewDate(2024, 3, 25), Date{Year: 1445, Month: 9, Day: 15}},
		{"unix epoch", models.NewDate(1970, 1, 1), Date{Year: 1389, Month: 10, Day: 22}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromGregorian(tt.in); got != tt.want {
				t.Errorf("FromGregorian(%s) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsRamadan(t *testing.T) {
	cal := New(0)
	tests := []struct {
		date models.Date
		want bool
	}{
		{models.NewDate(2024, 3, 25), true},
		{models.NewDate(2025, 3, 15), true},
		{models.NewDate(2024, 6, 21), false},
		{models.NewDate(2024, 12, 1), false},
	}
	for _, tt := range tests {
		if got := cal.IsRamadan(tt.date); got != tt.want {
			t.Errorf("IsRamadan(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestOffsetShiftsMonthBoundary(t *testing.T) {
	// 2024-03-25 is 15 Ramadan; shifting 16 days forward lands in Shawwal.
	if New(16).IsRamadan(models.NewDate(2024, 3, 25)) {
		t.Error("expected offset to move the date out of Ramadan")
	}
	if got := New(1).ToHijri(models.NewDate(2024, 3, 25)).Day; got != 16 {
		t.Errorf("offset day = %d, want 16", got)
	}
}

func TestDaysAreConsecutive(t *testing.T) {
	d := models.NewDate(2023, 1, 1)
	prev := FromGregorian(d)
	for i := 1; i < 800; i++ {
		cur := FromGregorian(d.AddDays(i))
		switch {
		case cur.Year == prev.Year && cur.Month == prev.Month:
			if cur.Day != prev.Day+1 {
				t.Fatalf("%s: day jumped %d -> %d", d.AddDays(i), prev.Day, cur.Day)
			}
		default:
			if cur.Day != 1 || (prev.Day != 29 && prev.Day != 30) {
				t.Fatalf("%s: bad month boundary %+v -> %+v", d.AddDays(i), prev, cur)
			}
		}
		prev = cur
	}
}

func TestString(t *testing.T) {
	d := Date{Year: 1445, Month: 9, Day: 15}
	if d.String() != "15 Ramadan 1445 AH" {
		t.Errorf("unexpected String: %s", d.String())
	}
}
