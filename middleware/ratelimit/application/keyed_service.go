package application

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"
)

// KeyFunc extrai a chave de rate limit de uma chamada.
type KeyFunc[Req any] func(ctx context.Context, req Req) domain.Key

// KeyedRateLimiterLayer é o RateLimiterLayer por chave: cada chamada usa o limiter
// que o store devolve para a sua chave. Store nil, ou store sem limiter para a chave, libera.
type KeyedRateLimiterLayer[Req, Resp any] struct {
	store domain.LimiterStore
	keyOf KeyFunc[Req]
	opts  options
}

func NewKeyedRateLimiterLayer[Req, Resp any](store domain.LimiterStore, keyOf KeyFunc[Req], opts ...Option) KeyedRateLimiterLayer[Req, Resp] {
	return KeyedRateLimiterLayer[Req, Resp]{store: store, keyOf: keyOf, opts: newOptions(opts)}
}

func (l KeyedRateLimiterLayer[Req, Resp]) Layer(inner Service[Req, Resp]) Service[Req, Outcome[Resp]] {
	return ServiceFunc[Req, Outcome[Resp]](func(ctx context.Context, req Req) (Outcome[Resp], error) {
		key := l.keyOf(ctx, req)
		// a chave da chamada rotula os eventos de stats
		ctx = ContextWithKey(ctx, key)

		var lim domain.RateLimiter
		if l.store != nil {
			lim = l.store.Get(key)
		}
		return RateLimiterService[Req, Resp]{inner: inner, limiter: lim, opts: l.opts}.Call(ctx, req)
	})
}
