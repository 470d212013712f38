package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string `env:"UPSTREAM_URL,required"`
	MetricsAddr string `env:"METRICS_ADDR"`
	Env         string `env:"ENV" envDefault:"prod"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Rate        rateConfig
	Concurrency concurrencyConfig
	Stats       statsConfig
}

type rateConfig struct {
	Enabled  bool          `env:"RATE_ENABLED" envDefault:"true"`
	Strategy string        `env:"RATE_STRATEGY" envDefault:"atomic-lazy"`
	Quota    uint64        `env:"RATE_QUOTA" envDefault:"10"`
	Window   time.Duration `env:"RATE_WINDOW" envDefault:"1s"`
	// RATE_PER_KEY=false usa um único limiter para todo o tráfego.
	PerKey       bool          `env:"RATE_PER_KEY" envDefault:"true"`
	KeyHeader    string        `env:"RATE_KEY_HEADER"`
	TrustXFF     bool          `env:"TRUST_XFF" envDefault:"false"`
	RetryAfter   time.Duration `env:"RETRY_AFTER" envDefault:"1s"`
	AddHeaders   bool          `env:"ADD_RATELIMIT_HEADERS" envDefault:"false"`
	IdleTTL      time.Duration `env:"RATE_IDLE_TTL" envDefault:"15m"`
	CleanupEvery time.Duration `env:"RATE_CLEANUP_EVERY" envDefault:"2m"`
}

type concurrencyConfig struct {
	Max uint64 `env:"CONCURRENCY_MAX" envDefault:"100"`
	// atomic (lock-free, pode exceder o limite em 1 por instantes) ou chan (estrito)
	Pool string `env:"CONCURRENCY_POOL" envDefault:"atomic"`
}

// maxChanPool limita CONCURRENCY_MAX no pool chan, que aloca um buffer de `max` posições.
const maxChanPool = 1 << 20

type statsConfig struct {
	Enabled       bool          `env:"RATE_STATS_ENABLED" envDefault:"false"`
	RedisAddr     string        `env:"RATE_STATS_REDIS_ADDR"`
	RedisPassword string        `env:"RATE_STATS_REDIS_PASSWORD"`
	RedisDB       int           `env:"RATE_STATS_REDIS_DB" envDefault:"0"`
	Prefix        string        `env:"RATE_STATS_PREFIX" envDefault:"ratelimit:stats"`
	TTL           time.Duration `env:"RATE_STATS_TTL" envDefault:"24h"`
	Bucket        string        `env:"RATE_STATS_BUCKET" envDefault:"minute"`
	TrackKeys     bool          `env:"RATE_STATS_TRACK_KEYS" envDefault:"false"`
}

// loadConfig lê um .env opcional e depois o ambiente do processo.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid UPSTREAM_URL %q", c.UpstreamURL)
	}

	if c.Rate.Enabled {
		if _, err := domain.ParseStrategy(c.Rate.Strategy); err != nil {
			return fmt.Errorf("RATE_STRATEGY: %w", err)
		}
		if err := c.quota().Validate(); err != nil {
			return fmt.Errorf("RATE_QUOTA/RATE_WINDOW: %w", err)
		}
	}

	switch c.Concurrency.Pool {
	case "atomic", "chan":
	default:
		return fmt.Errorf("CONCURRENCY_POOL must be atomic or chan, got %q", c.Concurrency.Pool)
	}
	if c.Concurrency.Pool == "chan" && c.Concurrency.Max > maxChanPool {
		return fmt.Errorf("CONCURRENCY_MAX must be at most %d with CONCURRENCY_POOL=chan, got %d", maxChanPool, c.Concurrency.Max)
	}

	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return nil
}

func (c config) quota() domain.Quota {
	return domain.Quota{Window: c.Rate.Window, Limit: c.Rate.Quota}
}

func (c config) strategy() domain.Strategy {
	s, _ := domain.ParseStrategy(c.Rate.Strategy)
	return s
}
