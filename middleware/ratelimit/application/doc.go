// Package application contém os casos de uso (regras de aplicação) para rate limit
// por plano e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Check(ctx, id, tier) retorna um Result (success, limit, remaining, reset).
package application
