package infra

// schemaStatements é compatível com Postgres e SQLite.
// O índice parcial garante no máximo um domínio primário por loja.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stores (
  id   text PRIMARY KEY,
  slug text NOT NULL UNIQUE,
  plan text NOT NULL DEFAULT 'FREE'
)`,
	`CREATE TABLE IF NOT EXISTS store_domains (
  domain     text PRIMARY KEY,
  store_id   text NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
  is_primary boolean NOT NULL DEFAULT false
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS store_domains_one_primary
  ON store_domains (store_id) WHERE is_primary`,
	`CREATE INDEX IF NOT EXISTS store_domains_store_id ON store_domains (store_id)`,
}
