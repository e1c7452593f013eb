// Package metrics define os coletores Prometheus do gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa os contadores de decisão do gateway.
// Um valor nil é válido: todos os métodos viram no-op.
type Metrics struct {
	TenantResolutions *prometheus.CounterVec
	Redirects         prometheus.Counter
	CSRFRejections    *prometheus.CounterVec
	RateLimitDecision *prometheus.CounterVec
	RateLimitDegraded prometheus.Counter
}

// New registra os coletores em reg (use prometheus.NewRegistry() em testes).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TenantResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tenant_resolutions_total",
			Help: "Host to store resolutions by result",
		}, []string{"result"}),
		Redirects: f.NewCounter(prometheus.CounterOpts{
			Name: "gateway_redirects_total",
			Help: "Canonical domain redirects issued",
		}),
		CSRFRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_csrf_rejections_total",
			Help: "Requests rejected by CSRF validation",
		}, []string{"reason"}),
		RateLimitDecision: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_ratelimit_decisions_total",
			Help: "Rate limit decisions by tier and result",
		}, []string{"tier", "result"}),
		RateLimitDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ratelimit_degraded_total",
			Help: "Requests allowed because the counter store was unavailable",
		}),
	}
}

func (m *Metrics) Resolution(result string) {
	if m == nil {
		return
	}
	m.TenantResolutions.WithLabelValues(result).Inc()
}

func (m *Metrics) Redirect() {
	if m == nil {
		return
	}
	m.Redirects.Inc()
}

func (m *Metrics) CSRFRejected(reason string) {
	if m == nil {
		return
	}
	m.CSRFRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) RateLimit(tier string, allowed, degraded bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.RateLimitDecision.WithLabelValues(tier, result).Inc()
	if degraded {
		m.RateLimitDegraded.Inc()
	}
}
