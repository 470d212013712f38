package infra

import (
	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// SmoothBucket usa golang.org/x/time/rate: refill contínuo (quota/window por token)
// com burst igual à quota, em vez de resets por janela.
type SmoothBucket struct {
	lim *rate.Limiter
}

var _ domain.RateLimiter = (*SmoothBucket)(nil)

func NewSmoothBucket(quota domain.Quota) (*SmoothBucket, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}

	// quota 0 => rate.Limit(0) e burst 0: nega tudo, como os outros buckets
	r := rate.Limit(float64(quota.Limit) / quota.Window.Seconds())
	return &SmoothBucket{lim: rate.NewLimiter(r, int(quota.Limit))}, nil
}

func (b *SmoothBucket) Acquire() bool { return b.lim.Allow() }

func (b *SmoothBucket) Close() error { return nil }

func (b *SmoothBucket) RPS() float64 { return float64(b.lim.Limit()) }
func (b *SmoothBucket) Burst() int { return b.lim.Burst() }
