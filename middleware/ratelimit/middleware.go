package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

// Options configura o rate limit HTTP.
//
// Com Store o limite é por chave (um limiter por cliente). Sem Store e com Limiter,
// um único limiter é compartilhado por todas as requisições.
type Options struct {
	Store               domain.LimiterStore
	Limiter             domain.RateLimiter
	Stats               domain.StatsStore
	Logger              *zap.Logger
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	// Quota anunciada nos headers. Se zero, usa Store.Quota() quando disponível.
	Quota domain.Quota
}

type quotaInfo interface {
	Quota() domain.Quota
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// exchange é a "requisição" dos serviços HTTP: o par writer/request de uma chamada.
type exchange struct {
	w   http.ResponseWriter
	r   *http.Request
	key domain.Key
}

func serveNext(next http.Handler) application.Service[exchange, struct{}] {
	return application.ServiceFunc[exchange, struct{}](func(_ context.Context, ex exchange) (struct{}, error) {
		next.ServeHTTP(ex.w, ex.r)
		return struct{}{}, nil
	})
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Quota == (domain.Quota{}) {
		if qi, ok := opts.Store.(quotaInfo); ok {
			opts.Quota = qi.Quota()
		}
	}

	recordErr := func(err error) {
		opts.Logger.Debug("recording rate limit stats", zap.Error(err))
	}

	reject := func(w http.ResponseWriter, retryAfter time.Duration) {
		w.Header().Set("Retry-After", formatInt(int(retryAfter.Seconds())))
		http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
	}

	setHeaders := func(w http.ResponseWriter, key string) {
		if !opts.AddRateLimitHeaders {
			return
		}
		if key != "" {
			w.Header().Set("X-RateLimit-Key", key)
		}
		if opts.Quota != (domain.Quota{}) {
			w.Header().Set("X-RateLimit-Quota", formatUint(opts.Quota.Limit))
			w.Header().Set("X-RateLimit-Window", formatFloat(opts.Quota.Window.Seconds()))
		}
	}

	// limite global: um único RateLimiterService para todas as requisições
	if opts.Store == nil && opts.Limiter != nil {
		layer := application.NewRateLimiterLayer[exchange, struct{}](
			opts.Limiter,
			application.WithStats(opts.Stats),
			application.WithStatsErrorHandler(recordErr),
		)
		return func(next http.Handler) http.Handler {
			svc := layer.Layer(serveNext(next))
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				setHeaders(w, "")
				ctx := application.ContextWithRoute(r.Context(), r.Method, r.URL.Path)
				if _, err := svc.Call(ctx, exchange{w: w, r: r}); errors.Is(err, domain.ErrRateLimited) {
					reject(w, opts.RetryAfter)
				}
			})
		}
	}

	// limite por chave: o limiter de cada requisição vem do Store
	keyed := application.NewKeyedRateLimiterLayer[exchange, struct{}](
		opts.Store,
		func(_ context.Context, ex exchange) domain.Key { return ex.key },
		application.WithStats(opts.Stats),
		application.WithStatsErrorHandler(recordErr),
	)

	return func(next http.Handler) http.Handler {
		svc := keyed.Layer(serveNext(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			setHeaders(w, key)

			ctx := application.ContextWithRoute(r.Context(), r.Method, r.URL.Path)
			if _, err := svc.Call(ctx, exchange{w: w, r: r, key: domain.Key(key)}); errors.Is(err, domain.ErrRateLimited) {
				reject(w, opts.RetryAfter)
			}
		})
	}
}
