// Package location supplies the device's current coordinates to the coordinator.
//
// Providers are composable: a CachingProvider wraps any upstream provider and keeps
// serving its last good fix while the upstream is failing, up to a maximum staleness.
package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// Provider returns the current position.
type Provider interface {
	CurrentCoordinates(ctx context.Context) (models.Coordinates, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (models.Coordinates, error)

// CurrentCoordinates calls f.
func (f ProviderFunc) CurrentCoordinates(ctx context.Context) (models.Coordinates, error) {
	return f(ctx)
}

// StaticProvider always returns the same coordinates.
type StaticProvider struct {
	coords models.Coordinates
}

// NewStatic validates coords and returns a provider for them.
func NewStatic(coords models.Coordinates) (*StaticProvider, error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{coords: coords}, nil
}

// CurrentCoordinates returns the configured coordinates.
func (p *StaticProvider) CurrentCoordinates(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	return p.coords, nil
}

// DefaultMaxStaleness bounds how old a cached fix may be when the upstream fails.
const DefaultMaxStaleness = 6 * time.Hour

// CachingProvider remembers the last successful fix of an upstream provider.
type CachingProvider struct {
	upstream     Provider
	maxStaleness time.Duration
	now          func() time.Time

	mu     sync.Mutex
	last   models.Coordinates
	lastAt time.Time
	have   bool
}

// NewCaching wraps upstream. A non-positive maxStaleness uses DefaultMaxStaleness.
func NewCaching(upstream Provider, maxStaleness time.Duration) *CachingProvider {
	if maxStaleness <= 0 {
		maxStaleness = DefaultMaxStaleness
	}
	return &CachingProvider{
		upstream:     upstream,
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// CurrentCoordinates asks the upstream provider first. When it fails, the last good fix
// is returned if it is younger than the maximum staleness; otherwise the error wraps
// models.ErrLocationUnavailable.
func (p *CachingProvider) CurrentCoordinates(ctx context.Context) (models.Coordinates, error) {
	coords, err := p.upstream.CurrentCoordinates(ctx)
	if err == nil {
		err = coords.Validate()
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.last, p.lastAt, p.have = coords, now, true
		return coords, nil
	}

	if p.have && now.Sub(p.lastAt) <= p.maxStaleness {
		logger.Warn("Location provider failed, using fix from %v ago: %v", now.Sub(p.lastAt).Round(time.Second), err)
		return p.last, nil
	}
	return models.Coordinates{}, fmt.Errorf("%w: %v", models.ErrLocationUnavailable, err)
}

// Last returns the last good fix and when it was taken.
func (p *CachingProvider) Last() (models.Coordinates, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.lastAt, p.have
}
