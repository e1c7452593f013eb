package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storefront-gateway/metrics"
	"storefront-gateway/middleware/apierror"
	"storefront-gateway/middleware/exempt"
	"storefront-gateway/middleware/ratelimit/application"
	"storefront-gateway/middleware/ratelimit/domain"
	tenantapp "storefront-gateway/middleware/tenant/application"
)

// KeyFunc extrai a identificação do cliente (IP, header de API key, ...).
type KeyFunc func(r *http.Request) string

// TierFunc devolve o plano que define a cota da requisição.
type TierFunc func(r *http.Request) domain.Tier

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type Options struct {
	Service            *application.Service
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	TierFn             TierFunc
	Exempt             *exempt.Registry
	Logger             *zap.Logger
	Metrics            *metrics.Metrics
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// StoreTier lê o plano da loja ligada ao contexto; sem loja, FREE.
func StoreTier(r *http.Request) domain.Tier {
	if rs, ok := tenantapp.ResolvedStoreFromContext(r.Context()); ok {
		return application.ParseTier(rs.Plan)
	}
	return domain.TierFree
}

// Identifier monta "storeID:cliente". Sem loja ligada, só o cliente.
func Identifier(r *http.Request, client string) string {
	if id := tenantapp.StoreIDFromContext(r.Context()); id != "" {
		return id + ":" + client
	}
	return client
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.TierFn == nil {
		opts.TierFn = StoreTier
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if opts.Service == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Exempt.Bypasses(r.URL.Path, exempt.RateLimit) {
				next.ServeHTTP(w, r)
				return
			}

			tier := opts.TierFn(r)
			id := Identifier(r, opts.KeyFn(r))
			res := opts.Service.Check(r.Context(), id, tier)

			opts.Metrics.RateLimit(string(tier), res.Success, res.Degraded)
			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:      application.KeyFor(tier, id),
					Tier:     tier,
					StoreID:  tenantapp.StoreIDFromContext(r.Context()),
					Allowed:  res.Success,
					Degraded: res.Degraded,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       opts.Service.Now(),
				}); err != nil {
					logger.Debug("rate limit stats not recorded", zap.Error(err))
				}
			}

			setLimitHeaders(w, res)
			if !res.Success {
				w.Header().Set(HeaderRetryAfter, formatInt(retryAfterSeconds(res.RetryAfter)))
				logger.Info("rate limit exceeded",
					zap.String("tier", string(tier)),
					zap.String("identifier", id),
					zap.String("path", r.URL.Path),
				)
				apierror.Write(w, http.StatusTooManyRequests, apierror.CodeRateLimitExceeded, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, res domain.Result) {
	h := w.Header()
	h.Set(HeaderLimit, formatInt(res.Limit))
	h.Set(HeaderRemaining, formatInt(res.Remaining))
	h.Set(HeaderReset, formatUnix(res.Reset))
}
