// Package domain define contratos e tipos de domínio para rate limit por plano
// e limite de concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas
// (Redis, memória), o que permite testes de unidade puros.
package domain
