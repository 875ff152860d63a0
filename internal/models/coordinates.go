// Package models defines the core domain entities for mawaqit.
// These models represent locations, calendar days, computed prayer-time sets and the
// user's calculation settings. All models include built-in validation to ensure data
// integrity throughout the application.
package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinates is returned for latitude/longitude outside valid ranges.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Coordinates is a geographic position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks latitude is within [-90, 90] and longitude within [-180, 180].
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return fmt.Errorf("%w: NaN component", ErrInvalidCoordinates)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinates, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// ErrLocationUnavailable is returned when no current position can be determined.
var ErrLocationUnavailable = errors.New("location unavailable")
