package infra

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStatsStore expõe as decisões como contador admission_decisions_total{kind,result}.
//
// Key e Path ficam de fora dos labels de propósito (cardinalidade).
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

// NewPrometheusStatsStore registra os coletores em reg. Use um registry próprio em testes
// para não colidir com prometheus.DefaultRegisterer.
func NewPrometheusStatsStore(reg prometheus.Registerer, namespace string) *PrometheusStatsStore {
	return &PrometheusStatsStore{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_decisions_total",
				Help:      "Total number of admission decisions by limiter kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "allowed"
	if !ev.Allowed {
		result = "blocked"
	}
	s.decisions.WithLabelValues(string(ev.Kind), result).Inc()
	return nil
}
