package application

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storefront-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit (janela fixa por plano).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um Result.
// Se o store estiver indisponível, a requisição passa (fail-open) e a
// degradação é logada com throttling.
type Service struct {
	Store   domain.CounterStore
	Plans   map[domain.Tier]domain.Plan
	Timeout time.Duration
	Logger  *zap.Logger
	Now     func() time.Time

	degradedLog rate.Sometimes
}

func NewService(store domain.CounterStore, opts ...ServiceOption) *Service {
	s := &Service{
		Store:       store,
		Plans:       DefaultPlans(),
		Timeout:     500 * time.Millisecond,
		Logger:      zap.NewNop(),
		Now:         time.Now,
		degradedLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ServiceOption func(*Service)

func WithPlans(plans map[domain.Tier]domain.Plan) ServiceOption {
	return func(s *Service) {
		if len(plans) > 0 {
			s.Plans = plans
		}
	}
}

// WithTimeout limita a chamada ao store (0 = sem limite próprio).
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.Timeout = d }
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.Logger = l
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.Now = now }
}

// Plan devolve a cota do tier; tiers sem cota usam FREE.
func (s *Service) Plan(tier domain.Tier) domain.Plan {
	if p, ok := s.Plans[tier]; ok && p.Requests > 0 && p.Window > 0 {
		return p
	}
	if p, ok := s.Plans[domain.TierFree]; ok && p.Requests > 0 && p.Window > 0 {
		return p
	}
	return DefaultPlans()[domain.TierFree]
}

// KeyFor monta a chave "tier:identifier".
func KeyFor(tier domain.Tier, identifier string) domain.Key {
	return domain.Key(string(tier) + ":" + identifier)
}

func (s *Service) Check(ctx context.Context, identifier string, tier domain.Tier) domain.Result {
	plan := s.Plan(tier)
	now := s.Now()

	if s.Store == nil {
		return domain.Result{Success: true, Limit: plan.Requests, Remaining: plan.Requests, Reset: now.Add(plan.Window)}
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	key := KeyFor(tier, identifier)
	count, ttl, err := s.Store.Increment(ctx, key, plan.Window)
	if err != nil {
		s.degradedLog.Do(func() {
			s.Logger.Warn("rate limit store unavailable, failing open",
				zap.String("key", string(key)),
				zap.Error(err),
			)
		})
		return domain.Result{
			Success:   true,
			Limit:     plan.Requests,
			Remaining: plan.Requests,
			Reset:     now.Add(plan.Window),
			Degraded:  true,
		}
	}

	if ttl <= 0 || ttl > plan.Window {
		ttl = plan.Window
	}

	limit := int64(plan.Requests)
	res := domain.Result{
		Success:   count <= limit,
		Limit:     plan.Requests,
		Remaining: int(max(0, limit-count)),
		Reset:     now.Add(ttl),
	}
	if !res.Success {
		res.RetryAfter = ttl
	}
	return res
}
