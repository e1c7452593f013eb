package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-gateway/middleware/tenant/domain"
)

// PostgresLookup lê lojas e domínios via pgxpool. Somente leitura.
type PostgresLookup struct {
	Pool *pgxpool.Pool
}

func NewPostgresLookup(pool *pgxpool.Pool) *PostgresLookup {
	return &PostgresLookup{Pool: pool}
}

func (l *PostgresLookup) FindStoreByDomain(ctx context.Context, d string) (*domain.Store, error) {
	var s domain.Store
	err := l.Pool.QueryRow(ctx, `SELECT s.id, s.slug, s.plan
FROM store_domains d JOIN stores s ON s.id = d.store_id
WHERE d.domain = $1`, d).Scan(&s.ID, &s.Slug, &s.Plan)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return l.withDomains(ctx, &s)
}

func (l *PostgresLookup) FindStoreBySlug(ctx context.Context, slug string) (*domain.Store, error) {
	var s domain.Store
	err := l.Pool.QueryRow(ctx, `SELECT id, slug, plan FROM stores WHERE slug = $1`, slug).
		Scan(&s.ID, &s.Slug, &s.Plan)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return l.withDomains(ctx, &s)
}

func (l *PostgresLookup) withDomains(ctx context.Context, s *domain.Store) (*domain.Store, error) {
	rows, err := l.Pool.Query(ctx, `SELECT domain, is_primary FROM store_domains
WHERE store_id = $1 ORDER BY domain`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("load domains for store %s: %w", s.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sd domain.StoreDomain
		if err := rows.Scan(&sd.Domain, &sd.IsPrimary); err != nil {
			return nil, err
		}
		s.Domains = append(s.Domains, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func mapPgErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrStoreNotFound
	}
	return err
}

// EnsurePostgresSchema cria as tabelas, se ausentes.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.DomainLookup = (*PostgresLookup)(nil)
