package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_AcquireAndRelease(t *testing.T) {
	p := NewChanPool(2)

	r1, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}
	r2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected second slot")
	}
	if p.InUse() != 2 || p.Cap() != 2 {
		t.Fatalf("unexpected usage %d/%d", p.InUse(), p.Cap())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("pool must be full")
	}

	r1()
	r2()
	if p.InUse() != 0 {
		t.Fatalf("expected slots released, got %d", p.InUse())
	}
}

func TestChanPool_DoneContextNeverAcquires(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("canceled context must not take a slot")
	}
}
