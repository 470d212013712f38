package infra

import (
	"admission-gateway/middleware/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um semáforo estrito baseado em channel com capacidade `max`.
// Diferente do atomicPool, o número de vagas ocupadas nunca passa de max, nem por um instante.
func NewChanPool(max uint64) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) TryAcquire() (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return p.release, true
	default:
		// sem fila: rejeita na hora
		return nil, false
	}
}

func (p *chanPool) release() { <-p.sem }

func (p *chanPool) InFlight() uint64 { return uint64(len(p.sem)) }
func (p *chanPool) Limit() uint64 { return uint64(cap(p.sem)) }
