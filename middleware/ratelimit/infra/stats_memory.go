package infra

import (
	"context"
	"maps"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// Counters soma decisões de admissão.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c Counters) plus(allowed bool) Counters {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	return c
}

func bump[K comparable](m map[K]Counters, k K, allowed bool) {
	m[k] = m[k].plus(allowed)
}

// StatsSnapshot é uma cópia consistente dos contadores do MemoryStatsStore.
type StatsSnapshot struct {
	Total   Counters                      `json:"total"`
	ByKind  map[domain.LimitKind]Counters `json:"byKind"`
	ByRoute map[string]Counters           `json:"byRoute"`
	ByKey   map[domain.Key]Counters       `json:"byKey,omitempty"`
}

// MemoryStatsStore guarda contadores em memória, sem expiração.
// Serve para testes, desenvolvimento e para o /stats do example-server.
type MemoryStatsStore struct {
	mu        sync.Mutex
	snap      StatsSnapshot
	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackKeys também conta por chave de cliente (cardinalidade ilimitada).
func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		snap: StatsSnapshot{
			ByKind:  make(map[domain.LimitKind]Counters),
			ByRoute: make(map[string]Counters),
			ByKey:   make(map[domain.Key]Counters),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Total = s.snap.Total.plus(ev.Allowed)
	bump(s.snap.ByKind, ev.Kind, ev.Allowed)
	if route := ev.Route(); route != "" {
		bump(s.snap.ByRoute, route, ev.Allowed)
	}
	if s.trackKeys && ev.Key != "" {
		bump(s.snap.ByKey, ev.Key, ev.Allowed)
	}
	return nil
}

// Snapshot copia todos os contadores sob o mesmo lock.
func (s *MemoryStatsStore) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Total:   s.snap.Total,
		ByKind:  maps.Clone(s.snap.ByKind),
		ByRoute: maps.Clone(s.snap.ByRoute),
		ByKey:   maps.Clone(s.snap.ByKey),
	}
}

func (s *MemoryStatsStore) Total() Counters { return s.Snapshot().Total }

func (s *MemoryStatsStore) ByKind() map[domain.LimitKind]Counters { return s.Snapshot().ByKind }

func (s *MemoryStatsStore) ByRoute() map[string]Counters { return s.Snapshot().ByRoute }

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters { return s.Snapshot().ByKey }
