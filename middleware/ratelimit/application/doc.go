// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http, gRPC ou Thrift.
//
// Os limitadores são decorators genéricos sobre Service[Req, Resp]: um serviço limitado
// devolve (Outcome[Resp], error), onde o error externo é só a rejeição do limitador
// (domain.ErrRateLimited / domain.ErrConcurrencyLimited) e o erro do serviço interno
// segue intacto em Outcome.Err. Adaptors de protocolo usam Flatten para juntar as duas camadas.
//
// O limite por chave é o mesmo RateLimiterService, montado por KeyedRateLimiterLayer
// com o limiter que o LimiterStore devolve para a chave de cada chamada.
package application
