package coordinator

import (
	"context"
	"time"

	"github.com/rewired-gh/mawaqit/internal/calc"
	"github.com/rewired-gh/mawaqit/internal/hijri"
	"github.com/rewired-gh/mawaqit/internal/location"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// UnavailableMessage is shown instead of times when calculation fails.
const UnavailableMessage = "prayer times unavailable for this location/date"

const clockLayout = "15:04"

// PrayerView is one prayer formatted for display.
type PrayerView struct {
	Prayer models.Prayer `json:"prayer"`
	Time   time.Time     `json:"time"`
	Local  string        `json:"local"`
}

// DayView is a display-ready prayer day.
type DayView struct {
	Date        models.Date        `json:"date"`
	Hijri       string             `json:"hijri,omitempty"`
	Coordinates models.Coordinates `json:"coordinates"`
	Method      string             `json:"method,omitempty"`
	Madhab      string             `json:"madhab,omitempty"`
	Prayers     []PrayerView       `json:"prayers,omitempty"`
	Sunrise     string             `json:"sunrise,omitempty"`
	Sunset      string             `json:"sunset,omitempty"`
	Zone        string             `json:"zone"`
	Disclaimer  string             `json:"disclaimer"`
	Cached      bool               `json:"cached"`
	Stale       bool               `json:"stale"`
	Message     string             `json:"message,omitempty"`
}

// hijriConverter is implemented by *hijri.Calendar.
type hijriConverter interface {
	ToHijri(d models.Date) hijri.Date
}

// ViewModel turns service lookups into display-ready days.
type ViewModel struct {
	service  *Service
	location location.Provider
	calendar calc.RamadanCalendar
	zone     *time.Location
	today    func() models.Date
}

func newViewModel(service *Service, loc location.Provider, cal calc.RamadanCalendar, zone *time.Location, today func() models.Date) *ViewModel {
	return &ViewModel{service: service, location: loc, calendar: cal, zone: zone, today: today}
}

// Service returns the shared Service.
func (v *ViewModel) Service() *Service { return v.service }

// Today renders today's times at the current location.
func (v *ViewModel) Today(ctx context.Context) (DayView, error) {
	return v.Day(ctx, v.today(), nil)
}

// Day renders date at coords, or at the current location when coords is nil.
// On failure the view carries UnavailableMessage and the error is returned too.
func (v *ViewModel) Day(ctx context.Context, date models.Date, coords *models.Coordinates) (DayView, error) {
	view, err := v.start(ctx, date, coords)
	if err != nil {
		return view, err
	}

	r, err := v.service.Lookup(ctx, date, view.Coordinates)
	if err != nil {
		view.Message = UnavailableMessage
		return view, err
	}
	view.Cached = r.Cached
	view.Stale = r.Stale
	v.fill(&view, r.Set)
	return view, nil
}

// Preview renders date under snap without touching the cache. When ramadan is
// set the date is treated as a Ramadan day.
func (v *ViewModel) Preview(ctx context.Context, date models.Date, coords *models.Coordinates, snap models.SettingsSnapshot, ramadan bool) (DayView, error) {
	view, err := v.start(ctx, date, coords)
	if err != nil {
		return view, err
	}

	set, err := v.service.Preview(date, view.Coordinates, snap, ramadan)
	if err != nil {
		view.Message = UnavailableMessage
		return view, err
	}
	v.fill(&view, set)
	return view, nil
}

func (v *ViewModel) start(ctx context.Context, date models.Date, coords *models.Coordinates) (DayView, error) {
	view := DayView{
		Date:       date,
		Zone:       v.zone.String(),
		Disclaimer: models.DisclaimerFor(date, v.today()).String(),
	}
	if conv, ok := v.calendar.(hijriConverter); ok {
		view.Hijri = conv.ToHijri(date).String()
	}

	if coords != nil {
		view.Coordinates = *coords
		return view, nil
	}
	c, err := currentCoordinates(ctx, v.location)
	if err != nil {
		view.Message = UnavailableMessage
		return view, err
	}
	view.Coordinates = c
	return view, nil
}

func (v *ViewModel) fill(view *DayView, set models.PrayerTimeSet) {
	view.Method = set.Method.String()
	view.Madhab = set.Madhab.String()
	view.Sunrise = v.local(set.Sunrise)
	view.Sunset = v.local(set.Sunset)
	view.Prayers = make([]PrayerView, 0, len(set.Times))
	for _, pt := range set.Times {
		view.Prayers = append(view.Prayers, PrayerView{Prayer: pt.Prayer, Time: pt.Time, Local: v.local(pt.Time)})
	}
}

func (v *ViewModel) local(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(v.zone).Format(clockLayout)
}
