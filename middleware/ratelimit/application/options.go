package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

type options struct {
	stats      domain.StatsStore
	key        domain.Key
	onStatsErr func(error)
	now        func() time.Time
}

type Option func(*options)

// WithStats registra cada decisão no store informado (best effort).
func WithStats(s domain.StatsStore) Option {
	return func(o *options) { o.stats = s }
}

// WithKey rotula os eventos registrados.
func WithKey(k domain.Key) Option {
	return func(o *options) { o.key = k }
}

// WithStatsErrorHandler recebe falhas de Record. O padrão é ignorar.
func WithStatsErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onStatsErr = fn }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) record(ctx context.Context, kind domain.LimitKind, allowed bool) {
	if o.stats == nil {
		return
	}
	method, path := RouteFromContext(ctx)
	ev := domain.StatsEvent{
		Key:     o.key,
		Kind:    kind,
		Allowed: allowed,
		Method:  method,
		Path:    path,
		At:      o.now(),
	}
	if k, ok := ctx.Value(keyCtxKey{}).(domain.Key); ok {
		ev.Key = k
	}
	if err := o.stats.Record(ctx, ev); err != nil && o.onStatsErr != nil {
		o.onStatsErr(err)
	}
}

type routeCtxKey struct{}

type keyCtxKey struct{}

type route struct{ method, path string }

// ContextWithRoute anexa método e rota ao contexto para rotular eventos de stats.
func ContextWithRoute(ctx context.Context, method, path string) context.Context {
	return context.WithValue(ctx, routeCtxKey{}, route{method: method, path: path})
}

func RouteFromContext(ctx context.Context) (method, path string) {
	if r, ok := ctx.Value(routeCtxKey{}).(route); ok {
		return r.method, r.path
	}
	return "", ""
}

// ContextWithKey sobrescreve, por chamada, a chave configurada com WithKey.
func ContextWithKey(ctx context.Context, k domain.Key) context.Context {
	return context.WithValue(ctx, keyCtxKey{}, k)
}
