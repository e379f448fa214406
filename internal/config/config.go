package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Services with their own rate-limit budget. Env overrides use the
// upper-cased name: RATE_LIMIT_COINGECKO_PER_MIN, RATE_LIMIT_TETHER_MAX_RETRIES.
var rateLimitedServices = []string{"coingecko", "tether", "ondo", "hyperliquid"}

// RateLimitOverride carries per-service tuning from the environment. Zero
// fields mean "use the default".
type RateLimitOverride struct {
	CallsPerMinute int
	MaxRetries     int
}

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// APIKey guards the mutating API routes when set. Empty disables auth.
	APIKey string

	// CacheBackend selects memory, redis, or postgres.
	CacheBackend string

	IngestIntervalSecs int
	RiskLookbackDays   int
	MetricLookbackHrs  int
	AdapterConcurrency int
	RequestTimeoutSecs int

	CoinGeckoAPIKey      string
	CoinGeckoPageSize    int
	CoinGeckoAssetsLimit int

	// HyperliquidAssets lists the perp coins to track, from the
	// comma-separated HYPERLIQUID_ASSETS. Empty means the adapter's default
	// majors.
	HyperliquidAssets []string

	RateLimits map[string]RateLimitOverride
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		CoinGeckoAPIKey: os.Getenv("COINGECKO_API_KEY"),
		APIKey:          strings.TrimSpace(os.Getenv("API_KEY")),
	}

	cfg.Port = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, running without persistence")
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "localhost:6379"
	}

	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "memory"
	}
	switch cfg.CacheBackend {
	case "memory", "redis", "postgres":
	default:
		log.Printf("Warning: unsupported CACHE_BACKEND=%q, defaulting to memory", cfg.CacheBackend)
		cfg.CacheBackend = "memory"
	}

	cfg.IngestIntervalSecs = intEnv("INGEST_INTERVAL_SECS", 300)
	cfg.RiskLookbackDays = intEnv("RISK_LOOKBACK_DAYS", 90)
	cfg.MetricLookbackHrs = intEnv("METRIC_LOOKBACK_HOURS", 24)
	cfg.AdapterConcurrency = intEnv("ADAPTER_CONCURRENCY", 4)
	cfg.RequestTimeoutSecs = intEnv("REQUEST_TIMEOUT_SECS", 30)

	cfg.CoinGeckoPageSize = intEnv("COINGECKO_PAGE_SIZE", 100)
	cfg.CoinGeckoAssetsLimit = intEnv("COINGECKO_ASSETS_LIMIT", 250)
	if cfg.CoinGeckoAPIKey == "" {
		log.Println("Warning: COINGECKO_API_KEY not set, using unauthenticated rate limits")
	}

	for _, coin := range strings.Split(os.Getenv("HYPERLIQUID_ASSETS"), ",") {
		if coin = strings.TrimSpace(coin); coin != "" {
			cfg.HyperliquidAssets = append(cfg.HyperliquidAssets, coin)
		}
	}

	cfg.RateLimits = make(map[string]RateLimitOverride, len(rateLimitedServices))
	for _, service := range rateLimitedServices {
		prefix := "RATE_LIMIT_" + strings.ToUpper(service)
		cfg.RateLimits[service] = RateLimitOverride{
			CallsPerMinute: intEnv(prefix+"_PER_MIN", 0),
			MaxRetries:     intEnv(prefix+"_MAX_RETRIES", 0),
		}
	}

	return cfg
}

func intEnv(name string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
