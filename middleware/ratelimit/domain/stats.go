package domain

import (
	"context"
	"strings"
	"time"
)

// LimitKind identifica qual limiter tomou a decisão.
type LimitKind string

const (
	KindRate        LimitKind = "rate"
	KindConcurrency LimitKind = "concurrency"
)

// StatsEvent é uma decisão de admissão (permitida ou rejeitada).
//
// Method/Path são strings livres: HTTP usa método e path, gRPC "grpc" e o FullMethod,
// Thrift "thrift" e o nome da função. Key e Path podem ter cardinalidade alta.
type StatsEvent struct {
	Key     Key
	Kind    LimitKind
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// Route junta Method e Path ("GET /x"). Vazio quando nenhum dos dois foi informado.
func (e StatsEvent) Route() string {
	return strings.TrimSpace(e.Method + " " + e.Path)
}

// StatsStore persiste eventos de decisão (memória, Redis, Prometheus...).
// Erros são best-effort: quem chama nunca derruba a request por causa deles.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
