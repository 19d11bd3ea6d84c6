package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/a-kowalenko/classy-weather/internal/api/http"
	"github.com/a-kowalenko/classy-weather/internal/config"
	"github.com/a-kowalenko/classy-weather/internal/scheduler"
	"github.com/a-kowalenko/classy-weather/internal/session"
	"github.com/a-kowalenko/classy-weather/internal/store"
	"github.com/a-kowalenko/classy-weather/internal/weather"
	"github.com/a-kowalenko/classy-weather/internal/weather/providers"
)

// queryStore is a weather.QueryStore that owns a connection.
type queryStore interface {
	weather.QueryStore
	io.Closer
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	httpCfg := providers.NewHTTPClientConfig(httpClient, cfg.HTTPMaxRetries)

	kv, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer kv.Close()

	// Upstreams. Geocoding is cached; Nominatim is limited to its usage policy.
	var geo weather.GeoResolver = providers.NewGeocodingClient(httpCfg, cfg.GeocodingURL)
	if cfg.GeocodeCacheTTL > 0 {
		geo = providers.NewCachedGeoResolver(geo, cfg.GeocodeCacheTTL)
	}
	forecaster := providers.NewOpenMeteoForecaster(httpCfg, cfg.ForecastURL)
	if cfg.GeoNamesUsername == "" {
		log.Printf("INFO: GEONAMES_USERNAME not set; current location lookups will fail")
	}
	positions := weather.NewPositionResolver(
		providers.NewGeoNamesClient(httpCfg, cfg.GeoNamesURL, cfg.GeoNamesUsername),
		providers.NewRateLimitedReverseGeocoder(
			providers.NewNominatimClient(httpClient, cfg.NominatimURL, cfg.UserAgent),
			cfg.NominatimRPS, 1,
		),
	)

	sessions := session.NewManager(func() *weather.Orchestrator {
		return weather.NewOrchestrator(weather.Dependencies{
			Geo:       geo,
			Forecast:  forecaster,
			Positions: positions,
			Store:     kv,
			StoreKey:  cfg.Store.Key,
		})
	})
	defer sessions.CloseAll()

	sched := scheduler.New(sessions, cfg.RefreshInterval, cfg.SessionIdleTimeout)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "classy-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Event streams stay open; writes are bounded by the keep-alive instead.
		WriteTimeout: 0,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "classy-weather",
			"sessions": sessions.Count(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, sessions)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: classy-weather listening on :%s (store: %s)", cfg.Port, cfg.Store.Backend)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func openStore(cfg config.StoreConfig) (queryStore, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, err
		}
		return store.NewRedisStore(client, cfg.RedisPrefix), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
