package storage

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// DefaultPrecision is the number of decimals coordinates are rounded to in keys.
// Two decimals is roughly one kilometer, enough to absorb GPS jitter.
const DefaultPrecision = 2

const maxPrecision = 6

// Key addresses one cached prayer-time set. Coordinates are stored scaled by
// 10^Precision so equality does not depend on float formatting.
type Key struct {
	Date      models.Date      `json:"date"`
	LatE      int64            `json:"lat_e"`
	LonE      int64            `json:"lon_e"`
	Precision int              `json:"precision"`
	Method    catalog.MethodID `json:"method_id"`
	Madhab    catalog.MadhabID `json:"madhab_id"`
	Variant   string           `json:"variant,omitempty"`
}

// NewKey builds a key, rounding coordinates to precision decimals.
func NewKey(date models.Date, coords models.Coordinates, method catalog.MethodID, madhab catalog.MadhabID, variant string, precision int) Key {
	if precision < 0 {
		precision = 0
	}
	if precision > maxPrecision {
		precision = maxPrecision
	}
	scale := math.Pow10(precision)
	return Key{
		Date:      date,
		LatE:      int64(math.Round(coords.Latitude * scale)),
		LonE:      int64(math.Round(coords.Longitude * scale)),
		Precision: precision,
		Method:    method,
		Madhab:    madhab,
		Variant:   variant,
	}
}

// Variant encodes the settings beyond method and madhab that change computed times.
// It is empty for default settings.
func Variant(astronomicalMaghrib bool, rule catalog.HighLatitudeRule) string {
	var parts []string
	if astronomicalMaghrib {
		parts = append(parts, "astro")
	}
	if rule != catalog.HighLatitudeAuto {
		parts = append(parts, "hl="+rule.String())
	}
	return strings.Join(parts, ";")
}

// Lat returns the rounded latitude.
func (k Key) Lat() float64 {
	return float64(k.LatE) / math.Pow10(k.Precision)
}

// Lon returns the rounded longitude.
func (k Key) Lon() float64 {
	return float64(k.LonE) / math.Pow10(k.Precision)
}

// Coordinates returns the rounded location.
func (k Key) Coordinates() models.Coordinates {
	return models.Coordinates{Latitude: k.Lat(), Longitude: k.Lon()}
}

// Location returns the key with method, madhab and variant cleared, identifying the
// date and place only.
func (k Key) Location() Key {
	return Key{Date: k.Date, LatE: k.LatE, LonE: k.LonE, Precision: k.Precision}
}

// LocationPrefix is the String prefix shared by all keys at the same date and place.
func (k Key) LocationPrefix() string {
	return fmt.Sprintf("%s|%s|%s|",
		k.Date,
		strconv.FormatFloat(k.Lat(), 'f', k.Precision, 64),
		strconv.FormatFloat(k.Lon(), 'f', k.Precision, 64))
}

// String returns the stable textual form used by persisted tiers.
func (k Key) String() string {
	s := fmt.Sprintf("%s%d|%d", k.LocationPrefix(), int(k.Method), int(k.Madhab))
	if k.Variant != "" {
		s += "|" + k.Variant
	}
	return s
}

// Hash returns the hex FNV-1a 64 digest of String.
func (k Key) Hash() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.String()))
	return strconv.FormatUint(h.Sum64(), 16)
}

// Entry is a cached prayer-time set with its key.
type Entry struct {
	Key      Key                  `json:"key"`
	Set      models.PrayerTimeSet `json:"set"`
	StoredAt time.Time            `json:"stored_at"`
}
