package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// driver "sqlite" (CGO-free)
	_ "modernc.org/sqlite"

	"storefront-gateway/middleware/tenant/domain"
)

// SQLLookup é o equivalente database/sql do PostgresLookup, usado com SQLite
// em desenvolvimento e em testes.
type SQLLookup struct {
	DB *sql.DB
}

// OpenSQLite abre (ou cria) um banco SQLite e garante o schema.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite em memória é por conexão
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSQLSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewSQLLookup(db *sql.DB) *SQLLookup {
	return &SQLLookup{DB: db}
}

func (l *SQLLookup) FindStoreByDomain(ctx context.Context, d string) (*domain.Store, error) {
	var s domain.Store
	err := l.DB.QueryRowContext(ctx, `SELECT s.id, s.slug, s.plan
FROM store_domains d JOIN stores s ON s.id = d.store_id
WHERE d.domain = ?`, d).Scan(&s.ID, &s.Slug, &s.Plan)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return l.withDomains(ctx, &s)
}

func (l *SQLLookup) FindStoreBySlug(ctx context.Context, slug string) (*domain.Store, error) {
	var s domain.Store
	err := l.DB.QueryRowContext(ctx, `SELECT id, slug, plan FROM stores WHERE slug = ?`, slug).
		Scan(&s.ID, &s.Slug, &s.Plan)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return l.withDomains(ctx, &s)
}

func (l *SQLLookup) withDomains(ctx context.Context, s *domain.Store) (*domain.Store, error) {
	rows, err := l.DB.QueryContext(ctx, `SELECT domain, is_primary FROM store_domains
WHERE store_id = ? ORDER BY domain`, s.ID)
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

func mapSQLErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrStoreNotFound
	}
	return err
}

// EnsureSQLSchema cria as tabelas, se ausentes.
func EnsureSQLSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.DomainLookup = (*SQLLookup)(nil)
