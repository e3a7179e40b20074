package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if want := []string{"duckduckgo", "google", "bing"}; !reflect.DeepEqual(cfg.Search.ProviderOrder, want) {
			t.Errorf("Search.ProviderOrder = %v, want %v", cfg.Search.ProviderOrder, want)
		}
		if cfg.Search.AttemptTimeout != 10*time.Second {
			t.Errorf("Search.AttemptTimeout = %v, want 10s", cfg.Search.AttemptTimeout)
		}
		if cfg.Search.RetryBackoff != 300*time.Millisecond {
			t.Errorf("Search.RetryBackoff = %v, want 300ms", cfg.Search.RetryBackoff)
		}
		if cfg.Search.DefaultCurrency != "ILS" {
			t.Errorf("Search.DefaultCurrency = %s, want ILS", cfg.Search.DefaultCurrency)
		}
		if cfg.Search.MaxAmount != 1000000 {
			t.Errorf("Search.MaxAmount = %v, want 1000000", cfg.Search.MaxAmount)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 30*time.Minute {
			t.Errorf("Cache.TTL = %v, want 30m", cfg.Cache.TTL)
		}
		if cfg.Cache.SweepInterval != 10*time.Minute {
			t.Errorf("Cache.SweepInterval = %v, want 10m", cfg.Cache.SweepInterval)
		}
		if cfg.Breaker.MaxFailures != 5 {
			t.Errorf("Breaker.MaxFailures = %d, want 5", cfg.Breaker.MaxFailures)
		}

		google, ok := cfg.Providers["google"]
		if !ok {
			t.Fatal("Providers[google] missing")
		}
		if google.RateWindow != time.Minute || google.RateLimit != 20 {
			t.Errorf("Providers[google] = %+v, want 60s window and limit 20", google)
		}
		if google.Burst != 2 {
			t.Errorf("Providers[google].Burst = %d, want 2", google.Burst)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		t.Setenv("PRICESCOUT_SERVER_PORT", "9090")
		t.Setenv("PRICESCOUT_SERVER_ENVIRONMENT", "production")
		t.Setenv("PRICESCOUT_SEARCH_PROVIDER_ORDER", "google,searxng")
		t.Setenv("PRICESCOUT_PROVIDERS_SEARXNG_BASE_URL", "http://searx.local")
		t.Setenv("PRICESCOUT_PROVIDERS_GOOGLE_RATE_LIMIT", "5")
		t.Setenv("PRICESCOUT_CACHE_TYPE", "redis")
		t.Setenv("PRICESCOUT_CACHE_REDIS_URL", "redis://localhost:6379")
		t.Setenv("PRICESCOUT_CACHE_TTL", "2h")
		t.Setenv("PRICESCOUT_RATELIMIT_STORE", "redis")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.IsDevelopment() {
			t.Error("IsDevelopment() = true, want false")
		}
		if want := []string{"google", "searxng"}; !reflect.DeepEqual(cfg.Search.ProviderOrder, want) {
			t.Errorf("Search.ProviderOrder = %v, want %v", cfg.Search.ProviderOrder, want)
		}
		if cfg.Providers["searxng"].BaseURL != "http://searx.local" {
			t.Errorf("Providers[searxng].BaseURL = %s, want http://searx.local", cfg.Providers["searxng"].BaseURL)
		}
		if cfg.Providers["google"].RateLimit != 5 {
			t.Errorf("Providers[google].RateLimit = %d, want 5", cfg.Providers["google"].RateLimit)
		}
		if cfg.Cache.TTL != 2*time.Hour {
			t.Errorf("Cache.TTL = %v, want 2h", cfg.Cache.TTL)
		}
		if cfg.RateRedisURL() != "redis://localhost:6379" {
			t.Errorf("RateRedisURL() = %s, want the cache redis url", cfg.RateRedisURL())
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		t.Setenv("PRICESCOUT_CACHE_TYPE", "memcached")

		_, err := Load()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("fails validation when redis URL is missing", func(t *testing.T) {
		t.Setenv("PRICESCOUT_CACHE_TYPE", "redis")

		_, err := Load()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
		}
		if !strings.Contains(err.Error(), "cache.redis_url") {
			t.Errorf("Load() error = %v, want mention of cache.redis_url", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty provider order", func(c *Config) { c.Search.ProviderOrder = nil }, "provider_order"},
		{"unknown provider", func(c *Config) { c.Search.ProviderOrder = []string{"altavista"} }, "altavista"},
		{"searxng without base url", func(c *Config) { c.Search.ProviderOrder = []string{"searxng"} }, "searxng"},
		{"zero rate window", func(c *Config) {
			p := c.Providers["bing"]
			p.RateWindow = 0
			c.Providers["bing"] = p
		}, "rate_window"},
		{"negative rate limit", func(c *Config) {
			p := c.Providers["bing"]
			p.RateLimit = -1
			c.Providers["bing"] = p
		}, "rate_limit"},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"zero attempt timeout", func(c *Config) { c.Search.AttemptTimeout = 0 }, "attempt_timeout"},
		{"zero sweep interval", func(c *Config) { c.Cache.SweepInterval = 0 }, "sweep_interval"},
		{"negative retries", func(c *Config) { c.Search.MaxRetries = -1 }, "max_retries"},
		{"unknown currency", func(c *Config) { c.Search.DefaultCurrency = "XYZ" }, "default_currency"},
		{"sqlite without path", func(c *Config) {
			c.Cache.Type = "sqlite"
			c.Cache.SQLitePath = ""
		}, "sqlite_path"},
		{"postgres without dsn", func(c *Config) { c.Cache.Type = "postgres" }, "postgres_dsn"},
		{"unknown rate store", func(c *Config) { c.RateLimit.Store = "etcd" }, "rate store"},
		{"redis rate store without url", func(c *Config) { c.RateLimit.Store = "redis" }, "ratelimit.redis_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)

			err = validate(cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("validate() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("reads yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pricescout.yaml")
		content := `
server:
  port: "7070"
log:
  level: debug
  format: json
search:
  provider_order: [bing, duckduckgo]
  enrich_pages: 3
cache:
  type: sqlite
  sqlite_path: /tmp/prices.db
  ttl: 45m
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v, want nil", err)
		}
		if cfg.Server.Port != "7070" {
			t.Errorf("Server.Port = %s, want 7070", cfg.Server.Port)
		}
		if cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
			t.Errorf("Log = %+v, want debug/json", cfg.Log)
		}
		if want := []string{"bing", "duckduckgo"}; !reflect.DeepEqual(cfg.Search.ProviderOrder, want) {
			t.Errorf("Search.ProviderOrder = %v, want %v", cfg.Search.ProviderOrder, want)
		}
		if cfg.Search.EnrichPages != 3 {
			t.Errorf("Search.EnrichPages = %d, want 3", cfg.Search.EnrichPages)
		}
		if cfg.Cache.Type != "sqlite" || cfg.Cache.TTL != 45*time.Minute {
			t.Errorf("Cache = %+v, want sqlite with 45m ttl", cfg.Cache)
		}
		if cfg.Providers["bing"].RateLimit != 20 {
			t.Errorf("Providers[bing].RateLimit = %d, want default 20", cfg.Providers["bing"].RateLimit)
		}
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		if err == nil {
			t.Fatal("LoadFile() error = nil, want error")
		}
	})
}
