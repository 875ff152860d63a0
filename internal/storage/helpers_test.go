package storage

import (
	"testing"
	"time"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

var (
	testDate   = models.NewDate(2024, 6, 21)
	testCoords = models.Coordinates{Latitude: 37.7749, Longitude: -122.4194}
)

// sampleEntry builds an ordered set whose times are offset by the method id so
// entries under different keys are distinguishable.
func sampleEntry(t *testing.T, method catalog.MethodID, madhab catalog.MadhabID, storedAt time.Time) Entry {
	t.Helper()
	base := testDate.UTC().Add(11*time.Hour + time.Duration(method)*time.Minute)
	set := models.PrayerTimeSet{
		Date:        testDate,
		Coordinates: testCoords,
		Method:      method,
		Madhab:      madhab,
		Sunrise:     base.Add(time.Hour),
		Sunset:      base.Add(16 * time.Hour),
		ComputedAt:  storedAt,
	}
	offsets := []time.Duration{0, 8 * time.Hour, 12 * time.Hour, 16 * time.Hour, 18 * time.Hour}
	for i, off := range offsets {
		set.Times[i] = models.PrayerTime{Prayer: models.Prayers[i], Time: base.Add(off)}
	}
	if err := set.Validate(); err != nil {
		t.Fatalf("sample set invalid: %v", err)
	}
	return Entry{
		Key:      NewKey(testDate, testCoords, method, madhab, "", DefaultPrecision),
		Set:      set,
		StoredAt: storedAt,
	}
}

func sameTimes(a, b models.PrayerTimeSet) bool {
	for i := range a.Times {
		if a.Times[i].Prayer != b.Times[i].Prayer || !a.Times[i].Time.Equal(b.Times[i].Time) {
			return false
		}
	}
	return a.Sunrise.Equal(b.Sunrise) && a.Sunset.Equal(b.Sunset)
}
