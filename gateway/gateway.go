// Package gateway compõe os middlewares do storefront na ordem de decisão:
//
//	headers de segurança -> tenant (resolve, redirect, contexto) -> CSRF -> rate limit -> handler
//
// Cada requisição gera um span "gateway.handle" com a decisão tomada.
package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-gateway/metrics"
	"storefront-gateway/middleware/csrf"
	csrfapp "storefront-gateway/middleware/csrf/application"
	"storefront-gateway/middleware/exempt"
	"storefront-gateway/middleware/headers"
	"storefront-gateway/middleware/ratelimit"
	rlapp "storefront-gateway/middleware/ratelimit/application"
	rldomain "storefront-gateway/middleware/ratelimit/domain"
	"storefront-gateway/middleware/tenant"
	tenantapp "storefront-gateway/middleware/tenant/application"
	tenantdomain "storefront-gateway/middleware/tenant/domain"
)

const (
	TracerName = "storefront-gateway/gateway"

	// CSRFTokenPath emite um token novo para o front.
	CSRFTokenPath = "/api/csrf-token"

	// Headers repassados ao upstream; valores vindos do cliente são descartados.
	HeaderStoreID   = "X-Store-Id"
	HeaderStoreSlug = "X-Store-Slug"
	HeaderStorePlan = "X-Store-Plan"
)

// Decisões registradas no span.
const (
	DecisionProceed      = "proceed"
	DecisionRedirect     = "redirect"
	DecisionNotFound     = "not_found"
	DecisionCSRFRejected = "csrf_rejected"
	DecisionRateLimited  = "rate_limited"
	DecisionUnavailable  = "unavailable"
	DecisionAbandoned    = "abandoned"
)

type Options struct {
	BaseDomain string
	Production bool

	Lookup             tenantdomain.DomainLookup
	LookupTimeout      time.Duration
	TrustForwardedHost bool

	// CSRF nil desliga a proteção.
	CSRF *csrfapp.Guard
	// RateLimit nil desliga o limitador.
	RateLimit          *rlapp.Service
	Stats              rldomain.StatsStore
	TrustXForwardedFor bool

	Exempt         *exempt.Registry
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	TracerProvider trace.TracerProvider
}

type Gateway struct {
	opts   Options
	tracer trace.Tracer
	logger *zap.Logger
}

var (
	ErrNoLookup     = errors.New("gateway: domain lookup is required")
	ErrNoBaseDomain = errors.New("gateway: base domain is required")
)

func New(opts Options) (*Gateway, error) {
	if opts.Lookup == nil {
		return nil, ErrNoLookup
	}
	opts.BaseDomain = strings.Trim(strings.ToLower(strings.TrimSpace(opts.BaseDomain)), ".")
	if opts.BaseDomain == "" {
		return nil, ErrNoBaseDomain
	}
	if opts.Exempt == nil {
		opts.Exempt = exempt.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &Gateway{
		opts:   opts,
		tracer: opts.TracerProvider.Tracer(TracerName),
		logger: opts.Logger,
	}, nil
}

func (g *Gateway) Scheme() string {
	return tenantapp.Redirector{Production: g.opts.Production}.Scheme()
}

// Handler envolve next com toda a cadeia de decisão.
func (g *Gateway) Handler(next http.Handler) http.Handler {
	csrfOpts := csrf.Options{
		Guard:        g.opts.CSRF,
		SecureCookie: g.opts.Production,
		Logger:       g.logger,
		Metrics:      g.opts.Metrics,
	}

	inner := g.forward(next, csrfOpts)

	var h http.Handler = inner
	if g.opts.RateLimit != nil {
		h = ratelimit.Middleware(ratelimit.Options{
			Service:            g.opts.RateLimit,
			Stats:              g.opts.Stats,
			TrustXForwardedFor: g.opts.TrustXForwardedFor,
			Exempt:             g.opts.Exempt,
			Logger:             g.logger,
			Metrics:            g.opts.Metrics,
		})(h)
	}
	if g.opts.CSRF != nil {
		h = csrf.Middleware(csrfOpts)(h)
	}
	h = tenant.Middleware(tenant.Options{
		Binder: tenant.Binder{
			Resolver:      tenantapp.Resolver{Lookup: g.opts.Lookup, BaseDomain: g.opts.BaseDomain},
			HostFn:        tenant.DefaultHostFunc(g.opts.TrustForwardedHost),
			LookupTimeout: g.opts.LookupTimeout,
		},
		Redirector: tenantapp.Redirector{Production: g.opts.Production},
		Exempt:     g.opts.Exempt,
		Logger:     g.logger,
		Metrics:    g.opts.Metrics,
	})(h)
	h = headers.Security(headers.Default(g.opts.Production))(h)

	return g.trace(h)
}

// forward é o último passo: rota do token CSRF ou o handler de negócio, com os
// headers da loja já ligados.
func (g *Gateway) forward(next http.Handler, csrfOpts csrf.Options) http.Handler {
	tokenHandler := csrf.TokenHandler(csrfOpts)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sw, ok := w.(*statusWriter); ok {
			sw.proceeded = true
			sw.markStore(r)
		}

		r.Header.Del(HeaderStoreID)
		r.Header.Del(HeaderStoreSlug)
		r.Header.Del(HeaderStorePlan)
		if rs, ok := tenantapp.ResolvedStoreFromContext(r.Context()); ok && rs.StoreID != "" {
			r.Header.Set(HeaderStoreID, rs.StoreID)
			r.Header.Set(HeaderStoreSlug, rs.Slug)
			r.Header.Set(HeaderStorePlan, rs.Plan)
		}
		if rc, ok := tenantapp.FromContext(r.Context()); ok {
			r.Header.Set(tenant.HeaderRequestID, rc.RequestID)
		}

		if r.URL.Path == CSRFTokenPath && r.Method == http.MethodGet && g.opts.CSRF != nil {
			tokenHandler.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) trace(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "gateway.handle", trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		sw := &statusWriter{ResponseWriter: w}
		h.ServeHTTP(sw, r.WithContext(ctx))

		decision := sw.decision(r)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("gateway.decision", decision),
			attribute.Int("http.status_code", sw.statusCode()),
		)
		if sw.storeID != "" {
			span.SetAttributes(attribute.String("tenant.store_id", sw.storeID))
		}

		if decision != DecisionProceed {
			g.logger.Debug("gateway decision",
				zap.String("decision", decision),
				zap.String("host", r.Host),
				zap.String("path", r.URL.Path),
				zap.String("request_id", sw.Header().Get(tenant.HeaderRequestID)),
			)
		}
	})
}
