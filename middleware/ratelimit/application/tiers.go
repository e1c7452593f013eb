package application

import (
	"strings"
	"time"

	"storefront-gateway/middleware/ratelimit/domain"
)

// DefaultPlans são as cotas padrão por plano.
func DefaultPlans() map[domain.Tier]domain.Plan {
	return map[domain.Tier]domain.Plan{
		domain.TierFree:         {Requests: 100, Window: 60 * time.Second},
		domain.TierStarter:      {Requests: 500, Window: 60 * time.Second},
		domain.TierProfessional: {Requests: 2000, Window: 60 * time.Second},
		domain.TierEnterprise:   {Requests: 10000, Window: 60 * time.Second},
	}
}

// ParseTier normaliza o plano; vazio ou desconhecido vira FREE.
func ParseTier(s string) domain.Tier {
	switch t := domain.Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case domain.TierFree, domain.TierStarter, domain.TierProfessional, domain.TierEnterprise:
		return t
	default:
		return domain.TierFree
	}
}
