// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: janela fixa via script Lua (INCR + PEXPIRE + PTTL), com circuit breaker
//   - MemoryCounterStore: janela fixa em memória, com janitor
//   - RedisStatsStore / MemoryStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
