package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rewired-gh/mawaqit/internal/bus"
	"github.com/rewired-gh/mawaqit/internal/calc"
	"github.com/rewired-gh/mawaqit/internal/config"
	"github.com/rewired-gh/mawaqit/internal/coordinator"
	"github.com/rewired-gh/mawaqit/internal/hijri"
	"github.com/rewired-gh/mawaqit/internal/location"
	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
	"github.com/rewired-gh/mawaqit/internal/storage"
)

// app is everything a command needs around one coordinator.
type app struct {
	cfg   *config.Config
	coord *coordinator.Coordinator
	cache *storage.MultiTier
	bus   *bus.Bus
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	zone, err := cfg.Zone()
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone: %w", err)
	}
	defaults, err := cfg.DefaultSettings()
	if err != nil {
		return nil, err
	}

	settings, err := settingsStore(cfg, defaults)
	if err != nil {
		return nil, err
	}

	persisted, err := persistedTier(ctx, cfg)
	if err != nil {
		// A broken persisted tier must not stop the service; memory still works.
		logger.Error("Failed to open %s cache, running memory-only: %v", cfg.Cache.Backend, err)
		persisted = nil
	}
	cache := storage.NewMultiTier(
		storage.NewMemoryTier(cfg.Cache.MemoryMaxEntries),
		persisted,
		storage.WithRetryInterval(cfg.Cache.RetryInterval),
	)

	loc, err := locationProvider(cfg)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	b := bus.New(cfg.Settings.Debounce)
	calendar := hijri.New(cfg.Calculation.HijriOffset)
	coord, err := coordinator.New(coordinator.Deps{
		Settings: settings,
		Cache:    cache,
		Calculator: calc.NewEngine(
			calc.WithFallbackLatitude(cfg.Calculation.HighLatitudeThreshold),
			calc.WithElevation(cfg.Calculation.Elevation),
		),
		Calendar:        calendar,
		Location:        loc,
		Bus:             b,
		Precision:       cfg.Cache.CoordinatePrecision,
		RefreshDays:     cfg.Refresh.DaysAhead,
		RefreshInterval: cfg.Refresh.Interval,
		Zone:            zone,
	})
	if err != nil {
		b.Close()
		_ = cache.Close()
		return nil, err
	}

	return &app{cfg: cfg, coord: coord, cache: cache, bus: b}, nil
}

// Close flushes pending settings work, then releases the bus and the cache.
func (a *app) Close() {
	a.coord.Close()
	a.bus.Close()
	if err := a.cache.Close(); err != nil {
		logger.Error("Failed to close cache: %v", err)
	}
}

func settingsStore(cfg *config.Config, defaults models.SettingsSnapshot) (storage.SettingsStore, error) {
	if cfg.Settings.FilePath == "" {
		return storage.NewMemorySettingsStore().WithDefaults(defaults), nil
	}
	s, err := storage.NewFileSettingsStore(cfg.Settings.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}
	return s.WithDefaults(defaults), nil
}

func persistedTier(ctx context.Context, cfg *config.Config) (storage.Tier, error) {
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendFile:
		f, err := storage.NewFileTier(cfg.Cache.Path, 0o644, 0o755)
		if err != nil {
			return nil, err
		}
		return f.WithMaxEntries(cfg.Cache.FileMaxEntries), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		return storage.OpenSQLTier(ctx, storage.DriverSQLite, cfg.Cache.Path)
	case config.BackendPostgres:
		return storage.OpenSQLTier(ctx, storage.DriverPostgres, cfg.Cache.DSN)
	case config.BackendRedis:
		r := cfg.Cache.Redis
		return storage.NewRedisTier(ctx, storage.RedisOptions{
			Addr:     r.Addr,
			Username: r.Username,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
			TTL:      r.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func locationProvider(cfg *config.Config) (location.Provider, error) {
	switch cfg.Location.Provider {
	case config.ProviderHTTP:
		upstream := location.NewHTTPProvider(cfg.Location.URL, location.HTTPConfig{
			Timeout:    cfg.Location.Timeout,
			MaxRetries: cfg.Location.MaxRetries,
		})
		return location.NewCaching(upstream, cfg.Location.MaxStaleness), nil
	default:
		return location.NewStatic(cfg.Coordinates())
	}
}
