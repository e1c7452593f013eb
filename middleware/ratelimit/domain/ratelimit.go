package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Tier é o plano da loja; cada plano tem a sua cota.
type Tier string

const (
	TierFree         Tier = "FREE"
	TierStarter      Tier = "STARTER"
	TierProfessional Tier = "PROFESSIONAL"
	TierEnterprise   Tier = "ENTERPRISE"
)

// Plan é a cota de uma janela fixa: Requests por Window.
type Plan struct {
	Requests int
	Window   time.Duration
}

// CounterStore é o armazenamento compartilhado dos contadores.
//
// Increment soma 1 e devolve o total e o TTL restante numa única operação
// atômica. O primeiro incremento de uma janela define a expiração = window.
type CounterStore interface {
	Increment(ctx context.Context, key Key, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Result é a decisão de uma chamada a Check.
type Result struct {
	Success   bool
	Limit     int
	Remaining int
	// Reset é o instante em que a janela atual expira.
	Reset time.Time
	// RetryAfter é o TTL restante quando bloqueado. Se 0, não há recomendação.
	RetryAfter time.Duration
	// Degraded indica que o store falhou e a requisição passou (fail-open).
	Degraded bool
}
