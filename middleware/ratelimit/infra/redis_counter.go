package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"storefront-gateway/middleware/ratelimit/domain"
)

// fixedWindowScript incrementa e lê o TTL numa única operação atômica.
// KEYS[1] = chave, ARGV[1] = janela em ms.
// Se a chave ficou sem TTL (ex.: escrita externa), a expiração é refeita para
// nunca bloquear uma chave para sempre.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisCounterStore implementa domain.CounterStore compartilhado entre instâncias.
type RedisCounterStore struct {
	rdb     redis.Scripter
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

type RedisCounterOption func(*RedisCounterStore)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithBreaker envolve as chamadas num circuit breaker. Com o circuito aberto
// Increment falha na hora, sem esperar timeouts do Redis.
func WithBreaker(settings gobreaker.Settings) RedisCounterOption {
	return func(s *RedisCounterStore) {
		if settings.Name == "" {
			settings.Name = "ratelimit-redis"
		}
		if settings.ReadyToTrip == nil {
			settings.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 }
		}
		s.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

func NewRedisCounterStore(rdb redis.Scripter, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:    rdb,
		prefix: "ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) key(k domain.Key) string {
	if s.prefix == "" {
		return string(k)
	}
	return s.prefix + ":" + string(k)
}

type counterReply struct {
	count int64
	ttl   time.Duration
}

func (s *RedisCounterStore) Increment(ctx context.Context, key domain.Key, window time.Duration) (int64, time.Duration, error) {
	if s == nil || s.rdb == nil {
		return 0, 0, errors.New("redis counter store not configured")
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	if s.breaker == nil {
		r, err := s.increment(ctx, key, window)
		return r.count, r.ttl, err
	}

	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.increment(ctx, key, window)
	})
	if err != nil {
		return 0, 0, err
	}
	r := v.(counterReply)
	return r.count, r.ttl, nil
}

func (s *RedisCounterStore) increment(ctx context.Context, key domain.Key, window time.Duration) (counterReply, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		return counterReply{}, fmt.Errorf("invalid window %s", window)
	}

	vals, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.key(key)}, ms).Int64Slice()
	if err != nil {
		return counterReply{}, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if len(vals) != 2 {
		return counterReply{}, fmt.Errorf("redis incr %s: unexpected reply %v", key, vals)
	}
	return counterReply{count: vals[0], ttl: time.Duration(vals[1]) * time.Millisecond}, nil
}

// BreakerState expõe o estado do circuito ("closed", "open", "half-open").
func (s *RedisCounterStore) BreakerState() string {
	if s.breaker == nil {
		return "disabled"
	}
	return s.breaker.State().String()
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)
