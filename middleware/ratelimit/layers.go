package ratelimit

import (
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

type layerConfig struct {
	bucket  []infra.BucketOption
	service []application.Option
}

type LayerOption func(*layerConfig)

// WithBucketOptions repassa opções para o bucket (logger, relógio, task runner).
func WithBucketOptions(opts ...infra.BucketOption) LayerOption {
	return func(c *layerConfig) { c.bucket = append(c.bucket, opts...) }
}

// WithServiceOptions repassa opções para o decorator (stats, key).
func WithServiceOptions(opts ...application.Option) LayerOption {
	return func(c *layerConfig) { c.service = append(c.service, opts...) }
}

// NewRateLimiterLayer constrói o bucket da estratégia escolhida e o layer que o compartilha.
// Quota fora de faixa, janela inválida ou estratégia desconhecida retornam erro e nada é criado.
func NewRateLimiterLayer[Req, Resp any](strategy domain.Strategy, window time.Duration, quota uint64, opts ...LayerOption) (application.RateLimiterLayer[Req, Resp], error) {
	var cfg layerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	lim, err := infra.NewRateLimiter(strategy, domain.Quota{Window: window, Limit: quota}, cfg.bucket...)
	if err != nil {
		return application.RateLimiterLayer[Req, Resp]{}, err
	}
	return application.NewRateLimiterLayer[Req, Resp](lim, cfg.service...), nil
}

// NewRateLimiterLayerPerSecond é o atalho "quota por segundo".
func NewRateLimiterLayerPerSecond[Req, Resp any](strategy domain.Strategy, quota uint64, opts ...LayerOption) (application.RateLimiterLayer[Req, Resp], error) {
	return NewRateLimiterLayer[Req, Resp](strategy, time.Second, quota, opts...)
}

// NewConcurrencyLimiterLayer limita chamadas simultâneas com o pool atômico (lock-free).
func NewConcurrencyLimiterLayer[Req, Resp any](limit uint64, opts ...application.Option) application.ConcurrencyLimiterLayer[Req, Resp] {
	return application.NewConcurrencyLimiterLayer[Req, Resp](infra.NewAtomicPool(limit), opts...)
}
