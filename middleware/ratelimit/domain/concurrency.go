package domain

// SlotPool representa um recurso com capacidade finita (ex: requests em voo).
//
// A semântica é: TryAcquire nunca bloqueia nem enfileira. Se conseguir a vaga,
// retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	TryAcquire() (release func(), ok bool)
	InFlight() uint64
	Limit() uint64
}
