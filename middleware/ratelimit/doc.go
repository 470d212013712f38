// Package ratelimit fornece o wiring dos limitadores e os adapters HTTP (net/http)
// para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: decorators genéricos (RateLimiterService, ConcurrencyLimiterService) e decisão por chave
//   - infra: implementações concretas (buckets, pools, store por chave, stats)
//   - ratelimit (este pacote): construtores que juntam infra+application, middlewares HTTP,
//     extração de chave e tradução para status/headers
//   - grpclimit / thriftlimit: adapters para gRPC e Thrift
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 (rate limit) ou 503 (concorrência), sem fila
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_STRATEGY, RATE_QUOTA, RATE_WINDOW e CONCURRENCY_MAX.
package ratelimit
