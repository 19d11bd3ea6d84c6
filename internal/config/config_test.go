package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.HTTPTimeout != 10*time.Second || cfg.HTTPMaxRetries != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Store.Backend != "memory" || cfg.Store.Key != "location" {
		t.Fatalf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.RefreshInterval != 0 || cfg.NominatimRPS != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/w.db")
	t.Setenv("REFRESH_INTERVAL", "10m")
	t.Setenv("QUERY_STORE_KEY", "last-query")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" || cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/w.db" ||
		cfg.RefreshInterval != 10*time.Minute || cfg.Store.Key != "last-query" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_BACKEND":    "mongo",
		"HTTP_TIMEOUT":     "soon",
		"FORECAST_URL":     "not a url",
		"HTTP_MAX_RETRIES": "9",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%q to be rejected", key, value)
			}
		})
	}
}
