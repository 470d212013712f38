package infra

import (
	"fmt"
	"sync/atomic"

	"admission-gateway/middleware/ratelimit/domain"
)

// NewRateLimiter constrói o bucket da estratégia escolhida.
// Recusa construir quando a quota é inválida (não faz clamp).
func NewRateLimiter(strategy domain.Strategy, quota domain.Quota, opts ...BucketOption) (domain.RateLimiter, error) {
	switch strategy {
	case domain.StrategyAtomicLazy, "":
		return NewAtomicLazyBucket(quota, opts...)
	case domain.StrategyThread:
		return NewThreadBucket(quota, opts...)
	case domain.StrategyTask:
		return NewTaskBucket(quota, opts...)
	case domain.StrategySmooth:
		return NewSmoothBucket(quota)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, strategy)
	}
}

// MustNewRateLimiter é como NewRateLimiter, mas entra em pânico com configuração inválida.
func MustNewRateLimiter(strategy domain.Strategy, quota domain.Quota, opts ...BucketOption) domain.RateLimiter {
	l, err := NewRateLimiter(strategy, quota, opts...)
	if err != nil {
		panic(fmt.Sprintf("ratelimit: %v", err))
	}
	return l
}

// take consome um token se o saldo for positivo. Decremento por CAS: o saldo fica
// sempre em [0, quota], inclusive com refill concorrente, e negar não altera o estado.
func take(tokens *atomic.Int64) bool {
	for {
		t := tokens.Load()
		if t <= 0 {
			return false
		}
		if tokens.CompareAndSwap(t, t-1) {
			return true
		}
	}
}
