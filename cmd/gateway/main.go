package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := buildLogger(cfg.Env == "dev", cfg.LogLevel)
	defer log.Sync()
	log = log.Named("main")

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway stopped with error", zap.Error(err))
	}
	log.Info("gateway stopped")
}

func run(cfg config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// o errgroup também hospeda os refills dos task buckets
	g, gctx := errgroup.WithContext(ctx)

	target, _ := url.Parse(cfg.UpstreamURL) // validado em loadConfig
	proxy := newProxy(target, log.Named("proxy"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	stats, closeStats, err := buildStats(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer closeStats()

	h, closeLimiters, err := buildHandler(gctx, g, cfg, proxy, stats, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		}))
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		servers = append(servers, metricsSrv)
	}

	for _, s := range servers {
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", s.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		// join dos workers antes de g.Wait, senão os task buckets seguram o grupo
		return closeLimiters()
	})

	log.Info("gateway listening", zap.String("addr", cfg.ListenAddr), zap.Stringer("upstream", target))
	log.Info("rate",
		zap.Bool("enabled", cfg.Rate.Enabled),
		zap.String("strategy", cfg.Rate.Strategy),
		zap.Stringer("quota", cfg.quota()),
		zap.Bool("perKey", cfg.Rate.PerKey),
		zap.String("keyHeader", cfg.Rate.KeyHeader),
		zap.Bool("trustXFF", cfg.Rate.TrustXFF),
	)
	log.Info("rate-stats",
		zap.Bool("enabled", cfg.Stats.Enabled),
		zap.String("redisAddr", cfg.Stats.RedisAddr),
		zap.String("bucket", cfg.Stats.Bucket),
		zap.Duration("ttl", cfg.Stats.TTL),
		zap.Bool("trackKeys", cfg.Stats.TrackKeys),
	)
	log.Info("concurrency", zap.Uint64("max", cfg.Concurrency.Max), zap.String("pool", cfg.Concurrency.Pool))
	if cfg.MetricsAddr != "" {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
	}

	return g.Wait()
}

func newProxy(target *url.URL, log *zap.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}

// buildHandler monta proxy -> concorrência -> rate limit. A função devolvida encerra
// os limiters (join dos workers).
func buildHandler(ctx context.Context, g *errgroup.Group, cfg config, next http.Handler, stats domain.StatsStore, log *zap.Logger) (http.Handler, func() error, error) {
	closeLimiters := func() error { return nil }

	var pool domain.SlotPool
	if cfg.Concurrency.Pool == "chan" && cfg.Concurrency.Max > 0 {
		pool = infra.NewChanPool(cfg.Concurrency.Max)
	}

	h := next
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:          cfg.Concurrency.Max,
		Pool:         pool,
		RejectStatus: http.StatusServiceUnavailable,
		Stats:        stats,
		Logger:       log.Named("concurrency"),
	})(h)

	if !cfg.Rate.Enabled {
		return h, closeLimiters, nil
	}

	bucketOpts := []infra.BucketOption{
		infra.WithLogger(log.Named("bucket")),
		infra.WithTaskRunner(g),
	}
	opts := ratelimit.Options{
		Stats:               stats,
		Logger:              log.Named("ratelimit"),
		KeyHeader:           cfg.Rate.KeyHeader,
		TrustXForwardedFor:  cfg.Rate.TrustXFF,
		RejectStatus:        http.StatusTooManyRequests,
		RetryAfter:          cfg.Rate.RetryAfter,
		AddRateLimitHeaders: cfg.Rate.AddHeaders,
		Quota:               cfg.quota(),
	}

	if cfg.Rate.PerKey {
		store, err := infra.NewStore(cfg.strategy(), cfg.quota(),
			infra.WithIdleTTL(cfg.Rate.IdleTTL),
			infra.WithCleanupEvery(cfg.Rate.CleanupEvery),
			infra.WithStoreLogger(log.Named("store")),
			infra.WithBucketOptions(bucketOpts...),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("rate limiter store: %w", err)
		}
		store.StartJanitor(ctx)
		opts.Store = store
		closeLimiters = store.Close
	} else {
		lim, err := infra.NewRateLimiter(cfg.strategy(), cfg.quota(), bucketOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
		opts.Limiter = lim
		closeLimiters = lim.Close
	}

	return ratelimit.Middleware(opts)(h), closeLimiters, nil
}

func buildStats(ctx context.Context, cfg config, reg prometheus.Registerer) (domain.StatsStore, func(), error) {
	stores := []domain.StatsStore{infra.NewPrometheusStatsStore(reg, "gateway")}
	if !cfg.Stats.Enabled {
		return infra.NewMultiStatsStore(stores...), func() {}, nil
	}

	rdb := buildRedisClient(cfg.Stats.RedisAddr, cfg.Stats.RedisPassword, cfg.Stats.RedisDB)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis stats ping: %w", err)
	}

	stores = append(stores, infra.NewRedisStatsStore(
		rdb,
		infra.WithStatsPrefix(cfg.Stats.Prefix),
		infra.WithStatsTTL(cfg.Stats.TTL),
		infra.WithStatsBucket(cfg.Stats.Bucket),
		infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
	))
	return infra.NewMultiStatsStore(stores...), func() { _ = rdb.Close() }, nil
}

func buildLogger(isDev bool, level string) *zap.Logger {
	logConfig := zap.NewProductionConfig()
	if isDev {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.TimeKey = ""
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logConfig.DisableStacktrace = true
		logConfig.DisableCaller = true
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		logConfig.Level.SetLevel(lvl)
	}
	return zap.Must(logConfig.Build())
}

func buildRedisClient(addr, password string, db int) *redis.Client {
	opts := &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	}

	return redis.NewClient(opts)
}
