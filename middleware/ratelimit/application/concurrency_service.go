package application

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"
)

// ConcurrencyLimiterService rejeita imediatamente quando não há vaga no pool.
// A vaga é devolvida ao fim da chamada interna, com sucesso, erro ou panic.
type ConcurrencyLimiterService[Req, Resp any] struct {
	inner Service[Req, Resp]
	pool  domain.SlotPool
	opts  options
}

func (s ConcurrencyLimiterService[Req, Resp]) Call(ctx context.Context, req Req) (Outcome[Resp], error) {
	if s.pool != nil {
		release, ok := s.pool.TryAcquire()
		if !ok {
			s.opts.record(ctx, domain.KindConcurrency, false)
			return Outcome[Resp]{}, domain.ErrConcurrencyLimited
		}
		defer release()
	}
	s.opts.record(ctx, domain.KindConcurrency, true)

	resp, err := s.inner.Call(ctx, req)
	return Outcome[Resp]{Response: resp, Err: err}, nil
}

// ConcurrencyLimiterLayer compartilha um único pool entre todos os serviços que produz.
type ConcurrencyLimiterLayer[Req, Resp any] struct {
	pool domain.SlotPool
	opts options
}

// NewConcurrencyLimiterLayer usa o pool informado. Pool nil libera tudo.
func NewConcurrencyLimiterLayer[Req, Resp any](pool domain.SlotPool, opts ...Option) ConcurrencyLimiterLayer[Req, Resp] {
	return ConcurrencyLimiterLayer[Req, Resp]{pool: pool, opts: newOptions(opts)}
}

func (l ConcurrencyLimiterLayer[Req, Resp]) Layer(inner Service[Req, Resp]) Service[Req, Outcome[Resp]] {
	return ConcurrencyLimiterService[Req, Resp]{inner: inner, pool: l.pool, opts: l.opts}
}

func (l ConcurrencyLimiterLayer[Req, Resp]) Pool() domain.SlotPool { return l.pool }
