package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	// Outbound HTTP.
	HTTPTimeout    time.Duration `validate:"gt=0"`
	HTTPMaxRetries int           `validate:"gte=0,lte=5"`
	UserAgent      string        `validate:"required"`

	// Upstream endpoints.
	GeocodingURL     string `validate:"required,url"`
	ForecastURL      string `validate:"required,url"`
	GeoNamesURL      string `validate:"required,url"`
	GeoNamesUsername string
	NominatimURL     string  `validate:"required,url"`
	NominatimRPS     float64 `validate:"gt=0"`

	// GeocodeCacheTTL of 0 disables the geocode cache.
	GeocodeCacheTTL time.Duration `validate:"gte=0"`

	Store StoreConfig

	// RefreshInterval of 0 disables periodic refresh.
	RefreshInterval    time.Duration `validate:"gte=0"`
	SessionIdleTimeout time.Duration `validate:"gte=0"`
}

type StoreConfig struct {
	Backend string `validate:"oneof=memory redis sqlite"`
	Key     string `validate:"required"`

	RedisAddr     string `validate:"required_if=Backend redis"`
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SQLitePath string `validate:"required_if=Backend sqlite"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	cfg.HTTPMaxRetries = getenvInt("HTTP_MAX_RETRIES", 0)
	cfg.UserAgent = getenvDefault("USER_AGENT", "classy-weather/1.0")

	cfg.GeocodingURL = getenvDefault("GEOCODING_URL", "https://geocoding-api.open-meteo.com/v1/search")
	cfg.ForecastURL = getenvDefault("FORECAST_URL", "https://api.open-meteo.com/v1/forecast")
	cfg.GeoNamesURL = getenvDefault("GEONAMES_URL", "http://api.geonames.org/timezoneJSON")
	cfg.GeoNamesUsername = os.Getenv("GEONAMES_USERNAME")
	cfg.NominatimURL = getenvDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	cfg.NominatimRPS = getenvFloat("NOMINATIM_RPS", 1)

	if cfg.GeocodeCacheTTL, err = getenvDuration("GEOCODE_CACHE_TTL", "1h"); err != nil {
		return nil, err
	}

	cfg.Store = StoreConfig{
		Backend:       getenvDefault("STORE_BACKEND", "memory"),
		Key:           getenvDefault("QUERY_STORE_KEY", "location"),
		RedisAddr:     getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
		RedisPrefix:   getenvDefault("REDIS_PREFIX", "classy-weather:"),
		SQLitePath:    getenvDefault("SQLITE_PATH", "classy-weather.db"),
	}

	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getenvDuration("SESSION_IDLE_TIMEOUT", "30m"); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
