package application

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"
)

// RateLimiterService admite a chamada se o limiter compartilhado tiver token.
// Em caso de negação o serviço interno não é chamado.
type RateLimiterService[Req, Resp any] struct {
	inner   Service[Req, Resp]
	limiter domain.RateLimiter
	opts    options
}

func (s RateLimiterService[Req, Resp]) Call(ctx context.Context, req Req) (Outcome[Resp], error) {
	if s.limiter != nil && !s.limiter.Acquire() {
		s.opts.record(ctx, domain.KindRate, false)
		return Outcome[Resp]{}, domain.ErrRateLimited
	}
	s.opts.record(ctx, domain.KindRate, true)

	resp, err := s.inner.Call(ctx, req)
	return Outcome[Resp]{Response: resp, Err: err}, nil
}

// RateLimiterLayer envolve serviços com um único limiter. Cópias do layer e todos os
// serviços produzidos por ele compartilham o mesmo limiter.
type RateLimiterLayer[Req, Resp any] struct {
	limiter domain.RateLimiter
	opts    options
}

// NewRateLimiterLayer usa um limiter já construído. Limiter nil libera tudo.
func NewRateLimiterLayer[Req, Resp any](limiter domain.RateLimiter, opts ...Option) RateLimiterLayer[Req, Resp] {
	return RateLimiterLayer[Req, Resp]{limiter: limiter, opts: newOptions(opts)}
}

func (l RateLimiterLayer[Req, Resp]) Layer(inner Service[Req, Resp]) Service[Req, Outcome[Resp]] {
	return RateLimiterService[Req, Resp]{inner: inner, limiter: l.limiter, opts: l.opts}
}

func (l RateLimiterLayer[Req, Resp]) Limiter() domain.RateLimiter { return l.limiter }

// Close encerra o limiter (join do worker, se houver). Idempotente.
func (l RateLimiterLayer[Req, Resp]) Close() error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Close()
}
