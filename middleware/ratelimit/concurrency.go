package ratelimit

import (
	"errors"
	"net/http"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

// ConcurrencyOptions configura o limite de requisições simultâneas.
// Acima do limite a requisição é rejeitada na hora (sem fila).
type ConcurrencyOptions struct {
	Max          uint64
	RejectStatus int
	// Pool substitui o pool atômico padrão (ex.: infra.NewChanPool para limite estrito).
	Pool   domain.SlotPool
	Stats  domain.StatsStore
	Logger *zap.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		if opts.Max == 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Pool = infra.NewAtomicPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	layer := application.NewConcurrencyLimiterLayer[exchange, struct{}](
		opts.Pool,
		application.WithStats(opts.Stats),
		application.WithStatsErrorHandler(func(err error) {
			opts.Logger.Debug("recording concurrency stats", zap.Error(err))
		}),
	)

	return func(next http.Handler) http.Handler {
		svc := layer.Layer(serveNext(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := application.ContextWithRoute(r.Context(), r.Method, r.URL.Path)
			if _, err := svc.Call(ctx, exchange{w: w, r: r}); errors.Is(err, domain.ErrConcurrencyLimited) {
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
			}
		})
	}
}
