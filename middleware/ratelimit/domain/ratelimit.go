package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Key string

// RateLimiter decide, sem bloquear, se uma unidade de quota está disponível agora.
//
// Acquire retorna true quando um token estava disponível e foi consumido. Quando nega,
// o estado não muda (nunca consome parcialmente).
//
// Close encerra o worker de refill (se houver) e só retorna depois que ele terminou.
// Pode ser chamado mais de uma vez.
type RateLimiter interface {
	Acquire() bool
	Close() error
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) RateLimiter
}

// Quota é a configuração de um token bucket: Limit tokens a cada Window.
type Quota struct {
	Window time.Duration
	Limit  uint64
}

// PerSecond é o atalho "quota por segundo".
func PerSecond(limit uint64) Quota {
	return Quota{Window: time.Second, Limit: limit}
}

// Validate recusa configurações que não cabem no contador assinado do bucket.
// Não faz clamp: quota inválida é erro de construção.
func (q Quota) Validate() error {
	if q.Window <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidWindow, q.Window)
	}
	if q.Limit > math.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrQuotaOutOfRange, q.Limit)
	}
	return nil
}

// Tokens devolve a quota como int64. Só é seguro depois de Validate.
func (q Quota) Tokens() int64 { return int64(q.Limit) }

func (q Quota) String() string {
	return fmt.Sprintf("%d/%s", q.Limit, q.Window)
}

// Strategy seleciona a implementação do bucket na construção.
type Strategy string

const (
	// StrategyAtomicLazy: sem worker, refill preguiçoso no Acquire (menos preciso sob contenção).
	StrategyAtomicLazy Strategy = "atomic-lazy"
	// StrategyThread: uma goroutine presa a uma thread do SO faz o refill a cada janela.
	StrategyThread Strategy = "thread"
	// StrategyTask: o refill roda como task no scheduler do host (ex: errgroup).
	StrategyTask Strategy = "task"
	// StrategySmooth: refill contínuo via golang.org/x/time/rate.
	StrategySmooth Strategy = "smooth"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyAtomicLazy, StrategyThread, StrategyTask, StrategySmooth:
		return st, nil
	case "":
		return StrategyAtomicLazy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}
