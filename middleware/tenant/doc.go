// Package tenant fornece o adapter HTTP (net/http) da resolução de loja.
//
// Camadas:
//
//   - domain: Store, ResolvedStore, RequestContext e a porta DomainLookup
//   - application: Resolver, Redirector e propagação de contexto (sem net/http)
//   - infra: lookups em memória, cache TTL, Postgres (pgx) e SQLite
//   - tenant (este pacote): extração do host, middleware e WithStoreContext
//
// Fluxo do middleware:
//
//  1. Extrai o host (Host ou X-Forwarded-Host, se confiável)
//  2. Resolve a loja; 404 se não houver, 503 se o lookup falhar
//  3. Se o host não for o canônico, responde 301 para o domínio primário
//  4. Liga RequestContext{RequestID, StoreID} ao contexto e chama o próximo handler
package tenant
