package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rewired-gh/mawaqit/internal/models"
)

// HTTPConfig tunes the geolocation HTTP client.
type HTTPConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// HTTPProvider looks the position up from a JSON geolocation endpoint. Both
// {"latitude":..,"longitude":..} and {"lat":..,"lon":..} bodies are accepted.
type HTTPProvider struct {
	url            string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// geoResponse covers the field names used by common IP geolocation services.
type geoResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
}

// NewHTTPProvider creates a provider querying url.
func NewHTTPProvider(url string, cfg HTTPConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &HTTPProvider{
		url:            url,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// CurrentCoordinates fetches and decodes the endpoint's position.
func (p *HTTPProvider) CurrentCoordinates(ctx context.Context) (models.Coordinates, error) {
	resp, err := p.doRequest(ctx)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to fetch location: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, fmt.Errorf("location endpoint returned status %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to decode location: %w", err)
	}

	var coords models.Coordinates
	switch {
	case body.Latitude != nil && body.Longitude != nil:
		coords = models.Coordinates{Latitude: *body.Latitude, Longitude: *body.Longitude}
	case body.Lat != nil && body.Lon != nil:
		coords = models.Coordinates{Latitude: *body.Lat, Longitude: *body.Lon}
	default:
		return models.Coordinates{}, fmt.Errorf("location response has no coordinates")
	}
	if err := coords.Validate(); err != nil {
		return models.Coordinates{}, err
	}
	return coords, nil
}

// doRequest performs the GET with linear backoff on transport and 5xx errors.
func (p *HTTPProvider) doRequest(ctx context.Context) (*http.Response, error) {
	var lastErr error

	for i := 0; i < p.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		if i == p.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryDelayBase * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
