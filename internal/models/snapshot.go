package models

import (
	"errors"
	"time"

	"github.com/rewired-gh/mawaqit/internal/catalog"
)

// SettingsSnapshot is the user's effective calculation settings at one point in time.
// Version increases by one on every applied mutation.
type SettingsSnapshot struct {
	Method                 catalog.MethodID         `json:"method"`
	Madhab                 catalog.MadhabID         `json:"madhab"`
	UseAstronomicalMaghrib bool                     `json:"use_astronomical_maghrib"`
	HighLatitudeRule       catalog.HighLatitudeRule `json:"high_latitude_rule"`
	Version                uint64                   `json:"version"`
	UpdatedAt              time.Time                `json:"updated_at"`
}

// DefaultSettings returns the settings used when nothing has been persisted.
func DefaultSettings() SettingsSnapshot {
	return SettingsSnapshot{
		Method:           catalog.DefaultMethod,
		Madhab:           catalog.DefaultMadhab,
		HighLatitudeRule: catalog.HighLatitudeAuto,
	}
}

// Validate checks that all settings refer to catalog entries. UpdatedAt is stamped
// by whoever applies the change and is not checked here.
func (s *SettingsSnapshot) Validate() error {
	if !s.Method.Valid() {
		return catalog.ErrUnknownMethod
	}
	if !s.Madhab.Valid() {
		return catalog.ErrUnknownMadhab
	}
	if !s.HighLatitudeRule.Valid() {
		return errors.New("unknown high latitude rule")
	}
	return nil
}

// Normalize replaces unknown ids with documented defaults and reports whether it did.
// An unknown method falls back to DefaultMethod; an unknown madhab falls back to the
// method's suggested madhab, then DefaultMadhab.
func (s SettingsSnapshot) Normalize() (SettingsSnapshot, bool) {
	changed := false
	if !s.Method.Valid() {
		s.Method = catalog.DefaultMethod
		changed = true
	}
	if !s.Madhab.Valid() {
		s.Madhab = catalog.DefaultMadhab
		if m, err := catalog.LookupMethod(s.Method); err == nil && m.SuggestedMadhab.Valid() {
			s.Madhab = m.SuggestedMadhab
		}
		changed = true
	}
	if !s.HighLatitudeRule.Valid() {
		s.HighLatitudeRule = catalog.HighLatitudeAuto
		changed = true
	}
	return s, changed
}
