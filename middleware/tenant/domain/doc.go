// Package domain define tipos e contratos da resolução de tenant (loja).
//
// Não depende de net/http nem de persistência concreta: a busca de lojas é uma
// porta (DomainLookup) implementada na camada infra.
package domain
