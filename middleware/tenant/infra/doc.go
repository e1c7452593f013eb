// Package infra contém implementações concretas de domain.DomainLookup.
//
// Exemplos:
//   - MemoryLookup: índice em memória (dev/testes, ou lojas vindas do config)
//   - CachedLookup: decorador com TTL para qualquer lookup
//   - PostgresLookup: pgx/v5 (pgxpool)
//   - SQLLookup: database/sql (usado com modernc.org/sqlite)
package infra
