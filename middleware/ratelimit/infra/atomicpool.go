package infra

import (
	"sync/atomic"

	"admission-gateway/middleware/ratelimit/domain"
)

// atomicPool conta requests em voo com um único contador atômico, sem lock.
//
// O check-then-act não é exato: quem é rejeitado incrementa antes de desfazer,
// então o contador pode ler limit+1 por um instante. Quem é admitido nunca passa de limit.
//
// O teto é estrito: a comparação usa o valor anterior ao incremento (v >= limit),
// e não v > limit, que admitiria limit+1 chamadas simultâneas.
type atomicPool struct {
	limit uint64
	curr  atomic.Uint64

	release func()
}

// NewAtomicPool cria o pool lock-free com teto `limit`.
func NewAtomicPool(limit uint64) domain.SlotPool {
	p := &atomicPool{limit: limit}
	p.release = func() { p.curr.Add(^uint64(0)) }
	return p
}

func (p *atomicPool) TryAcquire() (func(), bool) {
	// valor antes do incremento
	if v := p.curr.Add(1) - 1; v >= p.limit {
		p.curr.Add(^uint64(0))
		return nil, false
	}
	return p.release, true
}

func (p *atomicPool) InFlight() uint64 { return p.curr.Load() }
func (p *atomicPool) Limit() uint64 { return p.limit }
