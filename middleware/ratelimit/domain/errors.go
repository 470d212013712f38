package domain

import "errors"

// Rejeições por request. O core não faz retry; isso é responsabilidade do pipeline.
var (
	ErrConcurrencyLimited = errors.New("concurrency limited")
	ErrRateLimited        = errors.New("rate limited")
)

// Erros de construção e de teardown.
var (
	ErrQuotaOutOfRange = errors.New("limit quota out of range")
	ErrInvalidWindow   = errors.New("window must be > 0")
	ErrUnknownStrategy = errors.New("unknown rate limiter strategy")
	ErrWorkerFailed    = errors.New("refill worker failed")
)

// IsLimited informa se err é uma rejeição do limiter (e não um erro do handler).
func IsLimited(err error) bool {
	return errors.Is(err, ErrConcurrencyLimited) || errors.Is(err, ErrRateLimited)
}
