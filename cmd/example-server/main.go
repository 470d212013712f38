package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

func main() {
	log := zap.Must(zap.NewDevelopment()).Named("example")
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Exemplo: injetando os middlewares diretamente no seu webserver (sem proxy)
	store, err := infra.NewStore(domain.StrategyThread, domain.PerSecond(5), infra.WithStoreLogger(log.Named("store")))
	if err != nil {
		log.Fatal("rate limiter store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()
	store.StartJanitor(ctx)

	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))

	h := ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 2, Stats: stats})(newMux(stats))
	h = ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		Stats:               stats,
		Logger:              log.Named("ratelimit"),
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

// newMux expõe / (rápido), /slow (segura a vaga de concorrência) e /stats.
func newMux(stats *infra.MemoryStatsStore) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		d := 2 * time.Second
		if v, err := time.ParseDuration(r.URL.Query().Get("d")); err == nil && v > 0 {
			d = v
		}
		select {
		case <-time.After(d):
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("slow ok\n"))
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats.Snapshot())
	})
	return mux
}
