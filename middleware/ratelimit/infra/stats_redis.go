package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAllowed = "allowed"
	fieldDenied  = "denied"
)

// RedisStatsStore grava contadores de decisão em hashes do Redis, num único pipeline
// por evento.
//
// Layout (prefix padrão "ratelimit:stats"):
//
//	<prefix>:total                  allowed/denied (cumulativo, sem TTL)
//	<prefix>:kind                   <kind>:allowed / <kind>:denied
//	<prefix>:minute:<yyyymmddhhmm>  allowed/denied (TTL)
//	<prefix>:route                  "<METHOD> <path>:<field>"
//	<prefix>:key:<key>              allowed/denied (TTL, só com trackKeys)
type RedisStatsStore struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	perMinute bool
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL vale para as séries por minuto e por key.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita "minute" (padrão) ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.perMinute = strings.EqualFold(strings.TrimSpace(bucket), "minute")
	}
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "ratelimit:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	field := fieldDenied
	if ev.Allowed {
		field = fieldAllowed
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	incr := func(key, f string, expire bool) {
		pipe.HIncrBy(ctx, key, f, 1)
		if expire && s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	incr(s.key("total"), field, false)
	if ev.Kind != "" {
		incr(s.key("kind"), string(ev.Kind)+":"+field, false)
	}
	if s.perMinute {
		incr(s.key("minute", at.UTC().Format("200601021504")), field, true)
	}
	if route := ev.Route(); route != "" {
		incr(s.key("route"), route+":"+field, false)
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		incr(s.key("key", k), field, true)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats: %w", err)
	}
	return nil
}

// Totals lê os contadores cumulativos.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	m, err := s.rdb.HGetAll(ctx, s.key("total")).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("redis stats: %w", err)
	}
	return countersFrom(m, "")
}

// KindTotals lê os contadores de um tipo de limitador.
func (s *RedisStatsStore) KindTotals(ctx context.Context, kind domain.LimitKind) (Counters, error) {
	m, err := s.rdb.HGetAll(ctx, s.key("kind")).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("redis stats: %w", err)
	}
	return countersFrom(m, string(kind)+":")
}

func countersFrom(m map[string]string, fieldPrefix string) (Counters, error) {
	var c Counters
	for f, dst := range map[string]*int64{fieldAllowed: &c.Allowed, fieldDenied: &c.Denied} {
		v, ok := m[fieldPrefix+f]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("redis stats: field %s: %w", fieldPrefix+f, err)
		}
		*dst = n
	}
	return c, nil
}
