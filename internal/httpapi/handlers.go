package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/mawaqit/internal/calc"
	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/coordinator"
	"github.com/rewired-gh/mawaqit/internal/models"
	"github.com/rewired-gh/mawaqit/internal/storage"
)

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

type settingsResponse struct {
	Method                 string    `json:"method"`
	Madhab                 string    `json:"madhab"`
	UseAstronomicalMaghrib bool      `json:"use_astronomical_maghrib"`
	HighLatitudeRule       string    `json:"high_latitude_rule"`
	Version                uint64    `json:"version"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// settingsRequest is a partial update: absent fields keep their value.
type settingsRequest struct {
	Method                 *string `json:"method"`
	Madhab                 *string `json:"madhab"`
	UseAstronomicalMaghrib *bool   `json:"use_astronomical_maghrib"`
	HighLatitudeRule       *string `json:"high_latitude_rule"`
}

type methodResponse struct {
	ID              int     `json:"id"`
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	FajrAngle       float64 `json:"fajr_angle"`
	IshaAngle       float64 `json:"isha_angle,omitempty"`
	IshaInterval    int     `json:"isha_interval_minutes,omitempty"`
	SuggestedMadhab string  `json:"suggested_madhab"`
}

type madhabResponse struct {
	ID                  int     `json:"id"`
	Key                 string  `json:"key"`
	Name                string  `json:"name"`
	AsrShadowMultiplier float64 `json:"asr_shadow_multiplier"`
	MaghribDelayMinutes int     `json:"maghrib_delay_minutes,omitempty"`
}

type cacheStatsResponse struct {
	storage.Stats
	Computations uint64 `json:"computations"`
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":           "ok",
		"settings_version": s.coord.Settings().Version,
		"cache_degraded":   s.coord.Service().CacheStats().Degraded,
	}
	if last, ok := s.coord.RefreshJob().Last(); ok {
		refresh := gin.H{
			"id":         last.ID,
			"trigger":    last.Trigger,
			"started_at": last.StartedAt,
			"computed":   last.Computed,
			"cached":     last.Cached,
			"failed":     len(last.Errors),
		}
		if last.Err != nil {
			refresh["error"] = last.Err.Error()
		}
		resp["last_refresh"] = refresh
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) times(c *gin.Context) {
	date := s.coord.Today()
	if raw := c.Query("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		date = d
	}

	coords, err := queryCoordinates(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	view, err := s.coord.ViewModel().Day(c.Request.Context(), date, coords)
	if err != nil {
		writeCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) next(c *gin.Context) {
	st, err := s.coord.Tracker().Status(c.Request.Context())
	if err != nil {
		writeCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, toSettingsResponse(s.coord.Settings()))
}

func (s *Server) putSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	mutate, err := req.mutation()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	snap, err := s.coord.UpdateSettings(c.Request.Context(), mutate)
	switch {
	case errors.Is(err, coordinator.ErrInvalidSettings):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, coordinator.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSettingsResponse(snap))
}

func (s *Server) methods(c *gin.Context) {
	all := catalog.Methods()
	out := make([]methodResponse, 0, len(all))
	for _, m := range all {
		out = append(out, methodResponse{
			ID:              int(m.ID),
			Key:             m.Key,
			Name:            m.Name,
			FajrAngle:       m.FajrAngle,
			IshaAngle:       m.IshaAngle,
			IshaInterval:    m.IshaIntervalMinutes,
			SuggestedMadhab: m.SuggestedMadhab.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) madhabs(c *gin.Context) {
	all := catalog.Madhabs()
	out := make([]madhabResponse, 0, len(all))
	for _, m := range all {
		out = append(out, madhabResponse{
			ID:                  int(m.ID),
			Key:                 m.Key,
			Name:                m.Name,
			AsrShadowMultiplier: m.AsrShadowMultiplier,
			MaghribDelayMinutes: m.MaghribDelayMinutes,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) cacheStats(c *gin.Context) {
	svc := s.coord.Service()
	c.JSON(http.StatusOK, cacheStatsResponse{
		Stats:        svc.CacheStats(),
		Computations: svc.Computations(),
	})
}

// invalidate drops the cached day for the current settings. Entries cached under
// other settings are kept.
func (s *Server) invalidate(c *gin.Context) {
	date := s.coord.Today()
	if raw := c.Query("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		date = d
	}
	coords, err := queryCoordinates(c)
	if err != nil || coords == nil {
		if err == nil {
			err = errors.New("lat and lon are required")
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.coord.Service().Invalidate(c.Request.Context(), date, *coords)
	c.Status(http.StatusNoContent)
}

// queryCoordinates reads lat and lon. Both absent means the current location.
func queryCoordinates(c *gin.Context) (*models.Coordinates, error) {
	rawLat, hasLat := c.GetQuery("lat")
	rawLon, hasLon := c.GetQuery("lon")
	if !hasLat && !hasLon {
		return nil, nil
	}
	if !hasLat || !hasLon {
		return nil, errors.New("lat and lon must be given together")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat %q", rawLat)
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lon %q", rawLon)
	}
	return &models.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func writeCalcError(c *gin.Context, err error) {
	kind := calc.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case calc.KindInvalidCoordinates:
		status = http.StatusBadRequest
	case calc.KindLocationUnavailable:
		status = http.StatusServiceUnavailable
	case calc.KindHighLatitudeUnresolvable:
		status = http.StatusUnprocessableEntity
	}
	resp := errorResponse{Error: err.Error(), Message: coordinator.UnavailableMessage}
	if kind != 0 {
		resp.Kind = kind.String()
	}
	c.JSON(status, resp)
}

func toSettingsResponse(s models.SettingsSnapshot) settingsResponse {
	return settingsResponse{
		Method:                 s.Method.String(),
		Madhab:                 s.Madhab.String(),
		UseAstronomicalMaghrib: s.UseAstronomicalMaghrib,
		HighLatitudeRule:       s.HighLatitudeRule.String(),
		Version:                s.Version,
		UpdatedAt:              s.UpdatedAt,
	}
}

func (r settingsRequest) mutation() (func(*models.SettingsSnapshot), error) {
	var (
		method catalog.MethodID
		madhab catalog.MadhabID
		rule   catalog.HighLatitudeRule
		err    error
	)
	if r.Method != nil {
		if method, err = catalog.ParseMethod(*r.Method); err != nil {
			return nil, err
		}
	}
	if r.Madhab != nil {
		if madhab, err = catalog.ParseMadhab(*r.Madhab); err != nil {
			return nil, err
		}
	}
	if r.HighLatitudeRule != nil {
		if rule, err = catalog.ParseHighLatitudeRule(*r.HighLatitudeRule); err != nil {
			return nil, err
		}
	}
	return func(s *models.SettingsSnapshot) {
		if r.Method != nil {
			s.Method = method
		}
		if r.Madhab != nil {
			s.Madhab = madhab
		}
		if r.UseAstronomicalMaghrib != nil {
			s.UseAstronomicalMaghrib = *r.UseAstronomicalMaghrib
		}
		if r.HighLatitudeRule != nil {
			s.HighLatitudeRule = rule
		}
	}, nil
}
