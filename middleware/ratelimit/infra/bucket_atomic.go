package infra

import (
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// AtomicLazyBucket é um token bucket sem worker: o refill acontece no próprio Acquire.
//
// Na virada da janela, só quem ganha o CAS de lastRefill reseta os tokens; os demais
// seguem com o bucket antigo. Isso evita reset duplo, mas sob contenção alguns callers
// enxergam o bucket velho por mais um ciclo, então a taxa admitida fica abaixo da quota.
type AtomicLazyBucket struct {
	windowNanos uint64
	quota       int64

	lastRefill atomic.Uint64 // ns desde a epoch
	tokens     atomic.Int64

	now func() time.Time
}

var _ domain.RateLimiter = (*AtomicLazyBucket)(nil)

func NewAtomicLazyBucket(quota domain.Quota, opts ...BucketOption) (*AtomicLazyBucket, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	o := newBucketOptions(opts)

	b := &AtomicLazyBucket{
		windowNanos: uint64(quota.Window.Nanoseconds()),
		quota:       quota.Tokens(),
		now:         o.now,
	}
	b.lastRefill.Store(b.timestamp())
	b.tokens.Store(b.quota)
	return b, nil
}

func (b *AtomicLazyBucket) Acquire() bool {
	b.refill()
	return take(&b.tokens)
}

// Close não faz nada: não existe worker para encerrar.
func (b *AtomicLazyBucket) Close() error { return nil }

func (b *AtomicLazyBucket) refill() {
	now := b.timestamp()
	last := b.lastRefill.Load()
	if now < last+b.windowNanos {
		return
	}
	if b.lastRefill.CompareAndSwap(last, now) {
		b.tokens.Store(b.quota)
	}
}

func (b *AtomicLazyBucket) timestamp() uint64 {
	return uint64(b.now().UnixNano())
}
