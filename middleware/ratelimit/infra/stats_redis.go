package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-gateway/middleware/ratelimit/domain"
)

// RedisStatsStore grava contadores de decisão em hashes:
//
//	<prefix>:total          allowed|denied|degraded
//	<prefix>:tier           FREE:allowed, STARTER:denied, ...
//	<prefix>:minute:<yyyymmddhhmm>
//	<prefix>:store:<storeID>
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl vale para chaves por minuto e por loja; total e tier não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackStores bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackStores(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackStores = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	incr := func(key string, expire bool) {
		pipe.HIncrBy(ctx, key, field, 1)
		if ev.Degraded {
			pipe.HIncrBy(ctx, key, "degraded", 1)
		}
		if expire && s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	incr(s.prefix+":total", false)

	if ev.Tier != "" {
		pipe.HIncrBy(ctx, s.prefix+":tier", string(ev.Tier)+":"+field, 1)
	}

	if s.bucket == "minute" {
		incr(fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")), true)
	}

	if s.trackStores {
		if id := strings.TrimSpace(ev.StoreID); id != "" {
			incr(s.prefix+":store:"+id, true)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

var _ domain.StatsStore = (*RedisStatsStore)(nil)
