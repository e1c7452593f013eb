package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"storefront-gateway/config"
	rlapp "storefront-gateway/middleware/ratelimit/application"
	rldomain "storefront-gateway/middleware/ratelimit/domain"
	rlinfra "storefront-gateway/middleware/ratelimit/infra"
	tenantdomain "storefront-gateway/middleware/tenant/domain"
	tenantinfra "storefront-gateway/middleware/tenant/infra"
)

// buildLookup escolhe o backend de lojas e o envolve no cache.
func buildLookup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (tenantdomain.DomainLookup, func(), error) {
	var (
		lookup tenantdomain.DomainLookup
		closer = func() {}
	)

	switch cfg.LookupDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		if err == nil {
			err = tenantinfra.EnsurePostgresSchema(pingCtx, pool)
		}
		cancel()
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		lookup, closer = tenantinfra.NewPostgresLookup(pool), pool.Close

	case config.DriverSQLite:
		db, err := tenantinfra.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		lookup, closer = tenantinfra.NewSQLLookup(db), func() { _ = db.Close() }

	default:
		mem := tenantinfra.NewMemoryLookup(seedStores(cfg.Stores)...)
		if len(cfg.Stores) == 0 {
			logger.Warn("memory lookup has no stores, every host will resolve to STORE_NOT_FOUND")
		}
		lookup = mem
	}

	if cfg.LookupCacheTTL > 0 {
		cached := tenantinfra.NewCachedLookup(lookup, cfg.LookupCacheTTL)
		cached.StartJanitor(ctx, cfg.LookupCacheTTL)
		lookup = cached
	}
	return lookup, closer, nil
}

func seedStores(seeds []config.StoreSeed) []tenantdomain.Store {
	out := make([]tenantdomain.Store, 0, len(seeds))
	for _, s := range seeds {
		st := tenantdomain.Store{ID: s.ID, Slug: s.Slug, Plan: s.Plan}
		for _, d := range s.Domains {
			st.Domains = append(st.Domains, tenantdomain.StoreDomain{Domain: d.Domain, IsPrimary: d.Primary})
		}
		out = append(out, st)
	}
	return out
}

// buildLimiter monta o Service do rate limit. Sem REDIS_ADDR o contador fica
// em memória (instância única).
func buildLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rlapp.Service, rldomain.StatsStore, func(), error) {
	if !cfg.RateEnabled {
		return nil, nil, func() {}, nil
	}

	var (
		store  rldomain.CounterStore
		stats  rldomain.StatsStore
		closer = func() {}
	)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisTimeout * 5,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
		})
		closer = func() { _ = rdb.Close() }

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// segue em fail-open; o breaker evita esperar timeouts a cada requisição
			logger.Warn("redis ping failed, rate limiter starts degraded", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()

		store = rlinfra.NewRedisCounterStore(rdb,
			rlinfra.WithCounterPrefix(cfg.RedisPrefix),
			rlinfra.WithBreaker(gobreaker.Settings{
				Timeout: 30 * time.Second,
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn("rate limit breaker state change",
						zap.String("breaker", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()),
					)
				},
			}),
		)
		if cfg.RateStatsEnabled {
			stats = rlinfra.NewRedisStatsStore(rdb,
				rlinfra.WithStatsPrefix(cfg.RedisPrefix+":stats"),
				rlinfra.WithStatsTrackStores(true),
			)
		}
	} else {
		mem := rlinfra.NewMemoryCounterStore()
		mem.StartJanitor(ctx)
		store = mem
		if cfg.RateStatsEnabled {
			stats = rlinfra.NewMemoryStatsStore()
		}
	}

	svc := rlapp.NewService(store,
		rlapp.WithTimeout(cfg.RedisTimeout),
		rlapp.WithLogger(logger),
	)
	return svc, stats, closer, nil
}
