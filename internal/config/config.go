package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // zone names must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// EnvPrefix prefixes environment overrides, e.g. MAWAQIT_CACHE_BACKEND.
const EnvPrefix = "MAWAQIT"

// Persisted cache backends.
const (
	BackendNone     = "none"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Location providers.
const (
	ProviderStatic = "static"
	ProviderHTTP   = "http"
)

// Config represents the complete application configuration
type Config struct {
	Location    LocationConfig    `mapstructure:"location"`
	Calculation CalculationConfig `mapstructure:"calculation"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Settings    SettingsConfig    `mapstructure:"settings"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// LocationConfig selects where the current position comes from
type LocationConfig struct {
	Provider     string        `mapstructure:"provider"`
	Latitude     float64       `mapstructure:"latitude"`
	Longitude    float64       `mapstructure:"longitude"`
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
	Timezone     string        `mapstructure:"timezone"`
}

// CalculationConfig holds the default settings and engine tuning
type CalculationConfig struct {
	Method                string  `mapstructure:"method"`
	Madhab                string  `mapstructure:"madhab"`
	AstronomicalMaghrib   bool    `mapstructure:"astronomical_maghrib"`
	HighLatitudeRule      string  `mapstructure:"high_latitude_rule"`
	HighLatitudeThreshold float64 `mapstructure:"high_latitude_threshold"`
	Elevation             float64 `mapstructure:"elevation"`
	HijriOffset           int     `mapstructure:"hijri_offset"`
}

// CacheConfig holds cache tiers configuration
type CacheConfig struct {
	MemoryMaxEntries    int           `mapstructure:"memory_max_entries"`
	FileMaxEntries      int           `mapstructure:"file_max_entries"`
	CoordinatePrecision int           `mapstructure:"coordinate_precision"`
	Backend             string        `mapstructure:"backend"`
	Path                string        `mapstructure:"path"`
	DSN                 string        `mapstructure:"dsn"`
	RetryInterval       time.Duration `mapstructure:"retry_interval"`
	Redis               RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the redis tier connection
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SettingsConfig holds user settings persistence and change delivery
type SettingsConfig struct {
	FilePath string        `mapstructure:"file_path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// RefreshConfig holds background precomputation configuration
type RefreshConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	DaysAhead int           `mapstructure:"days_ahead"`
}

// HTTPConfig holds the API server configuration
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BotToken        string        `mapstructure:"bot_token"`
	ChatID          string        `mapstructure:"chat_id"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	AnnouncePrayers bool          `mapstructure:"announce_prayers"`
}

// MQTTConfig holds the MQTT publisher configuration
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file at path and
// MAWAQIT_* environment variables. A missing config file leaves the defaults in
// place; a malformed one is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Location defaults (Mecca)
	v.SetDefault("location.provider", ProviderStatic)
	v.SetDefault("location.latitude", 21.4225)
	v.SetDefault("location.longitude", 39.8262)
	v.SetDefault("location.url", "")
	v.SetDefault("location.timeout", "10s")
	v.SetDefault("location.max_retries", 3)
	v.SetDefault("location.max_staleness", "6h")
	v.SetDefault("location.timezone", "Local")

	// Calculation defaults
	v.SetDefault("calculation.method", "mwl")
	v.SetDefault("calculation.madhab", "shafi")
	v.SetDefault("calculation.astronomical_maghrib", false)
	v.SetDefault("calculation.high_latitude_rule", "auto")
	v.SetDefault("calculation.high_latitude_threshold", 65.0)
	v.SetDefault("calculation.elevation", 0.0)
	v.SetDefault("calculation.hijri_offset", 0)

	// Cache defaults
	v.SetDefault("cache.memory_max_entries", 4096)
	v.SetDefault("cache.file_max_entries", 16384)
	v.SetDefault("cache.coordinate_precision", 2)
	v.SetDefault("cache.backend", BackendSQLite)
	v.SetDefault("cache.path", "./data/cache.db")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.retry_interval", "30s")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "mawaqit:times:")
	v.SetDefault("cache.redis.ttl", "720h")

	// Settings defaults
	v.SetDefault("settings.file_path", "./data/settings.json")
	v.SetDefault("settings.debounce", "300ms")

	// Refresh defaults
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", "1h")
	v.SetDefault("refresh.days_ahead", 7)

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.announce_prayers", false)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "mawaqit")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "mawaqit")
	v.SetDefault("mqtt.qos", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Location config
	switch c.Location.Provider {
	case ProviderStatic:
		if err := c.Coordinates().Validate(); err != nil {
			return fmt.Errorf("location.latitude/longitude: %w", err)
		}
	case ProviderHTTP:
		if c.Location.URL == "" {
			return fmt.Errorf("location.url is required when location.provider is http")
		}
	default:
		return fmt.Errorf("location.provider must be one of: static, http")
	}
	if c.Location.MaxStaleness < 0 {
		return fmt.Errorf("location.max_staleness must not be negative")
	}
	if _, err := c.Zone(); err != nil {
		return fmt.Errorf("location.timezone: %w", err)
	}

	// Validate Calculation config
	if _, err := c.DefaultSettings(); err != nil {
		return err
	}
	if c.Calculation.HighLatitudeThreshold <= 0 || c.Calculation.HighLatitudeThreshold >= 90 {
		return fmt.Errorf("calculation.high_latitude_threshold must be between 0 and 90")
	}
	if c.Calculation.Elevation < 0 {
		return fmt.Errorf("calculation.elevation must not be negative")
	}
	if c.Calculation.HijriOffset < -2 || c.Calculation.HijriOffset > 2 {
		return fmt.Errorf("calculation.hijri_offset must be between -2 and 2")
	}

	// Validate Cache config
	if c.Cache.MemoryMaxEntries < 1 {
		return fmt.Errorf("cache.memory_max_entries must be at least 1")
	}
	if c.Cache.FileMaxEntries < 1 {
		return fmt.Errorf("cache.file_max_entries must be at least 1")
	}
	if c.Cache.CoordinatePrecision < 1 || c.Cache.CoordinatePrecision > 6 {
		return fmt.Errorf("cache.coordinate_precision must be between 1 and 6")
	}
	switch c.Cache.Backend {
	case BackendNone:
	case BackendFile, BackendSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Cache.Backend)
		}
	case BackendPostgres:
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of: none, file, sqlite, postgres, redis")
	}

	// Validate Settings config
	if c.Settings.Debounce < 10*time.Millisecond || c.Settings.Debounce > 10*time.Second {
		return fmt.Errorf("settings.debounce must be between 10ms and 10s")
	}

	// Validate Refresh config
	if c.Refresh.Enabled {
		if c.Refresh.Interval < time.Minute {
			return fmt.Errorf("refresh.interval must be at least 1 minute")
		}
		if c.Refresh.DaysAhead < 0 || c.Refresh.DaysAhead > 366 {
			return fmt.Errorf("refresh.days_ahead must be between 0 and 366")
		}
	}

	// Validate HTTP config
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate MQTT config
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Coordinates returns the configured static position.
func (c *Config) Coordinates() models.Coordinates {
	return models.Coordinates{Latitude: c.Location.Latitude, Longitude: c.Location.Longitude}
}

// Zone loads the configured time zone.
func (c *Config) Zone() (*time.Location, error) {
	if c.Location.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location.Timezone)
}

// DefaultSettings builds the settings snapshot used until the user saves their own.
func (c *Config) DefaultSettings() (models.SettingsSnapshot, error) {
	method, err := catalog.ParseMethod(c.Calculation.Method)
	if err != nil {
		return models.SettingsSnapshot{}, fmt.Errorf("calculation.method: %w", err)
	}
	madhab, err := catalog.ParseMadhab(c.Calculation.Madhab)
	if err != nil {
		return models.SettingsSnapshot{}, fmt.Errorf("calculation.madhab: %w", err)
	}
	rule, err := catalog.ParseHighLatitudeRule(c.Calculation.HighLatitudeRule)
	if err != nil {
		return models.SettingsSnapshot{}, fmt.Errorf("calculation.high_latitude_rule: %w", err)
	}

	s := models.DefaultSettings()
	s.Method = method
	s.Madhab = madhab
	s.UseAstronomicalMaghrib = c.Calculation.AstronomicalMaghrib
	s.HighLatitudeRule = rule
	return s, nil
}
