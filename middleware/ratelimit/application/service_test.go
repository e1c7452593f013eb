package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-gateway/middleware/ratelimit/domain"
)

// fakeCounter simula o store: janela começa no primeiro incremento.
type fakeCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	counts  map[domain.Key]int64
	expires map[domain.Key]time.Time
	err     error
	keys    []domain.Key
}

func newFakeCounter(now func() time.Time) *fakeCounter {
	return &fakeCounter{now: now, counts: map[domain.Key]int64{}, expires: map[domain.Key]time.Time{}}
}

func (f *fakeCounter) Increment(_ context.Context, key domain.Key, window time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return 0, 0, f.err
	}
	now := f.now()
	if exp, ok := f.expires[key]; !ok || !now.Before(exp) {
		f.counts[key] = 0
		f.expires[key] = now.Add(window)
	}
	f.counts[key]++
	return f.counts[key], f.expires[key].Sub(now), nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func TestService_AllowsWhenNoStore(t *testing.T) {
	svc := NewService(nil)
	res := svc.Check(context.Background(), "k", domain.TierFree)
	if !res.Success || res.Limit != 100 || res.Remaining != 100 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", res.RetryAfter)
	}
}

func TestService_FirstRequestOfWindow(t *testing.T) {
	c := &testClock{t: time.Unix(1_700_000_000, 0)}
	store := newFakeCounter(c.now)
	svc := NewService(store, WithClock(c.now))

	res := svc.Check(context.Background(), "store-1:10.0.0.1", domain.TierFree)
	if !res.Success || res.Remaining != 99 || res.Limit != 100 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.Reset.Equal(c.t.Add(60 * time.Second)) {
		t.Fatalf("expected reset at now+60s, got %s", res.Reset)
	}
	if store.keys[0] != "FREE:store-1:10.0.0.1" {
		t.Fatalf("expected tier:identifier key, got %q", store.keys[0])
	}
}

func TestService_BlocksAfterLimit(t *testing.T) {
	c := &testClock{t: time.Unix(1_700_000_000, 0)}
	svc := NewService(newFakeCounter(c.now), WithClock(c.now))

	for i := 1; i <= 100; i++ {
		res := svc.Check(context.Background(), "id", domain.TierFree)
		if !res.Success {
			t.Fatalf("request %d should pass", i)
		}
		if res.Remaining != 100-i {
			t.Fatalf("request %d: expected remaining=%d, got %d", i, 100-i, res.Remaining)
		}
	}

	c.t = c.t.Add(10 * time.Second)
	res := svc.Check(context.Background(), "id", domain.TierFree)
	if res.Success {
		t.Fatalf("101st request must be blocked")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", res.Remaining)
	}
	if !res.Reset.After(c.t) {
		t.Fatalf("expected reset in the future, got %s (now %s)", res.Reset, c.t)
	}
	if res.RetryAfter != 50*time.Second {
		t.Fatalf("expected RetryAfter=50s, got %s", res.RetryAfter)
	}
}

func TestService_WindowResets(t *testing.T) {
	c := &testClock{t: time.Unix(1_700_000_000, 0)}
	svc := NewService(newFakeCounter(c.now), WithClock(c.now))

	for i := 0; i < 101; i++ {
		svc.Check(context.Background(), "id", domain.TierFree)
	}
	c.t = c.t.Add(61 * time.Second)

	res := svc.Check(context.Background(), "id", domain.TierFree)
	if !res.Success || res.Remaining != 99 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestService_TiersAreIndependent(t *testing.T) {
	c := &testClock{t: time.Unix(1_700_000_000, 0)}
	store := newFakeCounter(c.now)
	svc := NewService(store, WithClock(c.now))

	free := svc.Check(context.Background(), "id", domain.TierFree)
	ent := svc.Check(context.Background(), "id", domain.TierEnterprise)
	if free.Limit != 100 || ent.Limit != 10000 {
		t.Fatalf("unexpected limits free=%d enterprise=%d", free.Limit, ent.Limit)
	}
	if ent.Remaining != 9999 {
		t.Fatalf("tiers must not share counters, got remaining=%d", ent.Remaining)
	}
}

func TestService_UnknownTierUsesFree(t *testing.T) {
	svc := NewService(nil)
	if p := svc.Plan("GOLD"); p.Requests != 100 {
		t.Fatalf("expected FREE plan, got %+v", p)
	}
	if ParseTier(" professional ") != domain.TierProfessional || ParseTier("") != domain.TierFree {
		t.Fatalf("unexpected tier parsing")
	}
}

func TestService_FailsOpenOnStoreError(t *testing.T) {
	c := &testClock{t: time.Unix(1_700_000_000, 0)}
	store := newFakeCounter(c.now)
	store.err = errors.New("dial tcp: connection refused")
	svc := NewService(store, WithClock(c.now))

	for i := 0; i < 3; i++ {
		res := svc.Check(context.Background(), "id", domain.TierStarter)
		if !res.Success || !res.Degraded {
			t.Fatalf("expected fail-open, got %+v", res)
		}
		if res.Limit != 500 || res.Remaining != 500 {
			t.Fatalf("unexpected degraded result %+v", res)
		}
	}
}

type slowCounter struct{}

func (slowCounter) Increment(ctx context.Context, _ domain.Key, _ time.Duration) (int64, time.Duration, error) {
	<-ctx.Done()
	return 0, 0, ctx.Err()
}

func TestService_TimeoutFailsOpen(t *testing.T) {
	svc := NewService(slowCounter{}, WithTimeout(10*time.Millisecond))

	start := time.Now()
	res := svc.Check(context.Background(), "id", domain.TierFree)
	if !res.Success || !res.Degraded {
		t.Fatalf("expected fail-open on timeout, got %+v", res)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("store call was not bounded")
	}
}

func TestService_ConcurrentChecksDoNotOverAdmit(t *testing.T) {
	store := newFakeCounter(time.Now)
	svc := NewService(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed, denied := 0, 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := svc.Check(context.Background(), "same", domain.TierFree)
			mu.Lock()
			defer mu.Unlock()
			if res.Success {
				allowed++
			} else {
				denied++
			}
		}()
	}
	wg.Wait()

	if allowed != 100 || denied != 50 {
		t.Fatalf("expected 100/50, got %d/%d", allowed, denied)
	}
}
