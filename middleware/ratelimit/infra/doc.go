// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Buckets (domain.RateLimiter):
//   - AtomicLazyBucket: sem worker, refill preguiçoso por CAS; lock-free e sem alocação,
//     mas menos preciso sob contenção
//   - ThreadBucket: goroutine dedicada presa a uma thread do SO, reset exato por janela
//   - TaskBucket: loop de refill como task no scheduler do host (ex: errgroup)
//   - SmoothBucket: refill contínuo com golang.org/x/time/rate
//
// Concorrência (domain.SlotPool):
//   - NewAtomicPool: contador atômico lock-free (aproximado em limit+1 no contador)
//   - NewChanPool: semáforo estrito baseado em channel
//
// Outros: Store (limiter por chave com janitor), stats em memória, Redis e Prometheus.
package infra
