package domain

import (
	"context"
	"errors"
)

// SlotPool limita quantas requisições o gateway atende ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar; o release
// devolvido deve ser chamado exatamente uma vez. InUse é informativo (logs).
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
	Cap() int
}

// ErrNoSlot indica que nenhuma vaga abriu dentro do tempo de espera.
var ErrNoSlot = errors.New("no concurrency slot available")
