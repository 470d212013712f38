package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Store mantém um domain.RateLimiter por chave, todos com a mesma estratégia e quota,
// com cache por chave e limpeza periódica.
//
// Entradas removidas por inatividade são fechadas (join do worker, se houver).
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	closed       bool
	strategy     domain.Strategy
	quota        domain.Quota
	idleTTL      time.Duration
	cleanupEvery time.Duration
	bucketOpts   []BucketOption
	logger       *zap.Logger
}

type storeEntry struct {
	lim      domain.RateLimiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBucketOptions repassa opções para cada bucket criado pelo Store.
func WithBucketOptions(opts ...BucketOption) StoreOption {
	return func(s *Store) { s.bucketOpts = append(s.bucketOpts, opts...) }
}

// NewStore valida a quota e a estratégia antes de aceitar qualquer chave.
func NewStore(strategy domain.Strategy, quota domain.Quota, opts ...StoreOption) (*Store, error) {
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	if _, err := domain.ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	s := &Store{
		entries:      make(map[string]*storeEntry),
		strategy:     strategy,
		quota:        quota,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Quota() domain.Quota { return s.quota }
func (s *Store) Strategy() domain.Strategy { return s.strategy }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.RateLimiter {
	return s.GetString(string(key))
}

// GetString retorna nil depois de Close.
func (s *Store) GetString(key string) domain.RateLimiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	// quota e estratégia já foram validadas em NewStore
	lim := MustNewRateLimiter(s.strategy, s.quota, s.bucketOpts...)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

// Len devolve o número de chaves ativas.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	var evicted []domain.RateLimiter
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			evicted = append(evicted, ent.lim)
		}
	}
	s.mu.Unlock()

	// join dos workers fora do lock
	if err := closeAll(evicted); err != nil {
		s.logger.Warn("closing evicted limiters", zap.Error(err))
	}
	if len(evicted) > 0 {
		s.logger.Debug("evicted idle limiters", zap.Int("count", len(evicted)))
	}
}

// Close encerra todos os limiters. Chamadas seguintes a Get retornam nil.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	all := make([]domain.RateLimiter, 0, len(s.entries))
	for _, ent := range s.entries {
		all = append(all, ent.lim)
	}
	s.entries = make(map[string]*storeEntry)
	s.mu.Unlock()

	return closeAll(all)
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

func closeAll(lims []domain.RateLimiter) error {
	var errs []error
	for _, l := range lims {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
