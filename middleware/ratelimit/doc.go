// Package ratelimit fornece adapters HTTP (net/http) para rate limit por plano
// e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela fixa por tier, acquire/timeout) sem net/http
//   - infra: implementações concretas (Redis + Lua, memória, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP, extração de chave e tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Rotas isentas (health, assets) passam direto
//  2. Monta o identificador "storeID:cliente" e lê o tier da loja no contexto
//  3. Chama Service.Check; falha do store é fail-open
//  4. Anexa X-RateLimit-Limit/Remaining/Reset; se bloqueado, 429 com Retry-After
//  5. Se permitido, chama o próximo handler
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_ENABLED, REDIS_ADDR, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
