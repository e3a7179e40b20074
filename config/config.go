package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pricescout/backend/internal/domain"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Provider names accepted under providers.* and search.provider_order
const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderGoogle     = "google"
	ProviderBing       = "bing"
	ProviderSearXNG    = "searxng"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultMaxAmount = 1_000_000
)

// ProviderNames lists every provider that gets per-provider defaults
func ProviderNames() []string {
	return []string{ProviderDuckDuckGo, ProviderGoogle, ProviderBing, ProviderSearXNG}
}

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Log       LogConfig                 `mapstructure:"log"`
	Search    SearchConfig              `mapstructure:"search"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Breaker   BreakerConfig             `mapstructure:"breaker"`
	Cache     CacheConfig               `mapstructure:"cache"`
	RateLimit RateLimitConfig           `mapstructure:"ratelimit"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// SearchConfig controls acquisition, extraction and ranking
type SearchConfig struct {
	ProviderOrder   []string      `mapstructure:"provider_order"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	NumResults      int           `mapstructure:"num_results"`
	Region          string        `mapstructure:"region"`
	Country         string        `mapstructure:"country"`
	Language        string        `mapstructure:"language"`
	UserAgent       string        `mapstructure:"user_agent"`
	DefaultCurrency string        `mapstructure:"default_currency"`
	MaxAmount       float64       `mapstructure:"max_amount"`
	MaxObservations int           `mapstructure:"max_observations"`
	MinRelevance    float64       `mapstructure:"min_relevance"`
	FuzzyMatching   bool          `mapstructure:"fuzzy_matching"`
	EnrichPages     int           `mapstructure:"enrich_pages"`
	EnrichTimeout   time.Duration `mapstructure:"enrich_timeout"`
}

// ProviderConfig holds the endpoint, quota and pacing of one search provider
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RateWindow        time.Duration `mapstructure:"rate_window"`
	RateLimit         int           `mapstructure:"rate_limit"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	Interval    time.Duration `mapstructure:"interval"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type          string        `mapstructure:"type"` // memory, redis, sqlite or postgres
	RedisURL      string        `mapstructure:"redis_url"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig selects where provider rate windows are kept
type RateLimitConfig struct {
	Store    string `mapstructure:"store"` // memory or redis
	RedisURL string `mapstructure:"redis_url"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from path, or from the default search paths
// when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pricescout/")
	}

	// PRICESCOUT_CACHE_TTL overrides cache.ttl
	v.SetEnvPrefix("PRICESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Search defaults
	v.SetDefault("search.provider_order", []string{ProviderDuckDuckGo, ProviderGoogle, ProviderBing})
	v.SetDefault("search.attempt_timeout", "10s")
	v.SetDefault("search.max_retries", 1)
	v.SetDefault("search.retry_backoff", "300ms")
	v.SetDefault("search.num_results", 10)
	v.SetDefault("search.region", "il-he")
	v.SetDefault("search.country", "il")
	v.SetDefault("search.language", "he")
	v.SetDefault("search.user_agent", defaultUserAgent)
	v.SetDefault("search.default_currency", "ILS")
	v.SetDefault("search.max_amount", defaultMaxAmount)
	v.SetDefault("search.max_observations", 50)
	v.SetDefault("search.min_relevance", 0.0)
	v.SetDefault("search.fuzzy_matching", true)
	v.SetDefault("search.enrich_pages", 0)
	v.SetDefault("search.enrich_timeout", "8s")

	// Per-provider defaults
	for _, name := range ProviderNames() {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"rate_window", "60s")
		v.SetDefault(prefix+"rate_limit", 20)
		v.SetDefault(prefix+"requests_per_second", 1.0)
		v.SetDefault(prefix+"burst", 2)
	}

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.cooldown", "60s")
	v.SetDefault("breaker.interval", "5m")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.sqlite_path", "data/prices.db")
	v.SetDefault("cache.postgres_dsn", "")
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.sweep_interval", "10m")

	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.redis_url", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// validate validates the configuration
func validate(config *Config) error {
	if len(config.Search.ProviderOrder) == 0 {
		return invalid("search.provider_order must name at least one provider")
	}
	for _, name := range config.Search.ProviderOrder {
		p, known := config.Providers[name]
		if !known {
			return invalid("unknown provider %q in search.provider_order", name)
		}
		if name == ProviderSearXNG && p.BaseURL == "" {
			return invalid("provider searxng requires providers.searxng.base_url")
		}
	}
	for name, p := range config.Providers {
		if p.RateWindow <= 0 {
			return invalid("providers.%s.rate_window must be positive, got %s", name, p.RateWindow)
		}
		if p.RateLimit <= 0 {
			return invalid("providers.%s.rate_limit must be positive, got %d", name, p.RateLimit)
		}
	}

	if config.Search.AttemptTimeout <= 0 {
		return invalid("search.attempt_timeout must be positive, got %s", config.Search.AttemptTimeout)
	}
	if config.Search.MaxRetries < 0 {
		return invalid("search.max_retries must not be negative, got %d", config.Search.MaxRetries)
	}
	if !domain.IsRecognizedCurrency(config.Search.DefaultCurrency) {
		return invalid("unknown search.default_currency %q", config.Search.DefaultCurrency)
	}
	if config.Breaker.MaxFailures <= 0 {
		return invalid("breaker.max_failures must be positive, got %d", config.Breaker.MaxFailures)
	}

	if config.Cache.TTL <= 0 {
		return invalid("cache.ttl must be positive, got %s", config.Cache.TTL)
	}
	if config.Cache.SweepInterval <= 0 {
		return invalid("cache.sweep_interval must be positive, got %s", config.Cache.SweepInterval)
	}
	switch config.Cache.Type {
	case "memory":
	case "redis":
		if config.Cache.RedisURL == "" {
			return invalid("cache.redis_url is required when cache type is 'redis'")
		}
	case "sqlite":
		if config.Cache.SQLitePath == "" {
			return invalid("cache.sqlite_path is required when cache type is 'sqlite'")
		}
	case "postgres":
		if config.Cache.PostgresDSN == "" {
			return invalid("cache.postgres_dsn is required when cache type is 'postgres'")
		}
	default:
		return invalid("cache type must be one of memory, redis, sqlite, postgres; got: %s", config.Cache.Type)
	}

	switch config.RateLimit.Store {
	case "memory":
	case "redis":
		if config.RateLimit.RedisURL == "" && config.Cache.RedisURL == "" {
			return invalid("ratelimit.redis_url is required when rate store is 'redis'")
		}
	default:
		return invalid("rate store must be 'memory' or 'redis', got: %s", config.RateLimit.Store)
	}

	return nil
}

// RateRedisURL is the Redis URL of the rate store, falling back to the cache's
func (c *Config) RateRedisURL() string {
	if c.RateLimit.RedisURL != "" {
		return c.RateLimit.RedisURL
	}
	return c.Cache.RedisURL
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}
