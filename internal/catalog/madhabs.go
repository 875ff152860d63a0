package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// MadhabID identifies a jurisprudential school. Values are stable and persisted.
type MadhabID int

const (
	MadhabShafi MadhabID = iota + 1
	MadhabHanafi
	MadhabMaliki
	MadhabHanbali
	MadhabJafari
)

// DefaultMadhab is the last-resort fallback for unknown madhab ids.
const DefaultMadhab = MadhabShafi

// Madhab carries the parameters a school contributes to the calculation.
//
// AsrShadowMultiplier always drives Asr. MaghribDelayMinutes is added to sunset
// unless astronomical Maghrib is enabled and MaghribAngle is set.
// IshaTwilightAngle is informational; Isha angles come from the method.
type Madhab struct {
	ID                  MadhabID
	Key                 string
	Name                string
	AsrShadowMultiplier float64
	IshaTwilightAngle   float64
	MaghribDelayMinutes int
	MaghribAngle        float64
}

// DelaysMaghrib reports whether the school postpones Maghrib past sunset.
func (m Madhab) DelaysMaghrib() bool {
	return m.MaghribDelayMinutes > 0
}

func (id MadhabID) String() string {
	if m, ok := madhabs[id]; ok {
		return m.Key
	}
	return "madhab(" + strconv.Itoa(int(id)) + ")"
}

// Valid reports whether the id is present in the catalog.
func (id MadhabID) Valid() bool {
	_, ok := madhabs[id]
	return ok
}

var madhabOrder = []MadhabID{MadhabShafi, MadhabHanafi, MadhabMaliki, MadhabHanbali, MadhabJafari}

var madhabs = map[MadhabID]Madhab{
	MadhabShafi:   {ID: MadhabShafi, Key: "shafi", Name: "Shafi'i", AsrShadowMultiplier: 1.0},
	MadhabHanafi:  {ID: MadhabHanafi, Key: "hanafi", Name: "Hanafi", AsrShadowMultiplier: 2.0},
	MadhabMaliki:  {ID: MadhabMaliki, Key: "maliki", Name: "Maliki", AsrShadowMultiplier: 1.0},
	MadhabHanbali: {ID: MadhabHanbali, Key: "hanbali", Name: "Hanbali", AsrShadowMultiplier: 1.0},
	MadhabJafari: {
		ID: MadhabJafari, Key: "jafari", Name: "Ja'fari",
		AsrShadowMultiplier: 1.0, IshaTwilightAngle: 14,
		MaghribDelayMinutes: 15, MaghribAngle: 4.0,
	},
}

// LookupMadhab returns the catalog entry for id.
func LookupMadhab(id MadhabID) (Madhab, error) {
	m, ok := madhabs[id]
	if !ok {
		return Madhab{}, fmt.Errorf("%w: %d", ErrUnknownMadhab, int(id))
	}
	return m, nil
}

// Madhabs returns all madhabs in stable id order.
func Madhabs() []Madhab {
	out := make([]Madhab, 0, len(madhabOrder))
	for _, id := range madhabOrder {
		out = append(out, madhabs[id])
	}
	return out
}

// ParseMadhab accepts a key ("hanafi"), a numeric id or a display name.
func ParseMadhab(s string) (MadhabID, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		id := MadhabID(n)
		if id.Valid() {
			return id, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownMadhab, s)
	}
	for _, id := range madhabOrder {
		m := madhabs[id]
		if strings.EqualFold(m.Key, s) || strings.EqualFold(m.Name, s) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownMadhab, s)
}
