package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"admission-gateway/middleware/ratelimit/infra"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func TestBuildHandler_ProxiesAndLimitsPerKey(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	for _, strategy := range []string{"atomic-lazy", "thread", "task", "smooth"} {
		t.Run(strategy, func(t *testing.T) {
			cfg, err := parseConfig(env.Options{Environment: map[string]string{
				"UPSTREAM_URL":  upstream.URL,
				"RATE_STRATEGY": strategy,
				"RATE_QUOTA":    "1",
				"RATE_WINDOW":   "1m",
			}})
			if err != nil {
				t.Fatalf("unexpected config error: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			target, _ := url.Parse(cfg.UpstreamURL)
			stats := infra.NewPrometheusStatsStore(prometheus.NewRegistry(), "test")
			h, closeLimiters, err := buildHandler(gctx, g, cfg, newProxy(target, zap.NewNop()), stats, zap.NewNop())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			codes := make([]int, 0, 3)
			for _, ip := range []string{"10.0.0.1:1", "10.0.0.1:2", "10.0.0.2:1"} {
				r := httptest.NewRequest(http.MethodGet, "http://gateway/", nil)
				r.RemoteAddr = ip
				w := httptest.NewRecorder()
				h.ServeHTTP(w, r)
				codes = append(codes, w.Code)
			}

			want := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}
			for i := range want {
				if codes[i] != want[i] {
					t.Fatalf("request %d: expected %d, got %d", i, want[i], codes[i])
				}
			}

			if err := closeLimiters(); err != nil {
				t.Fatalf("unexpected close error: %v", err)
			}
			cancel()
			if err := g.Wait(); err != nil {
				t.Fatalf("expected task hosts to finish cleanly, got %v", err)
			}
		})
	}
}
