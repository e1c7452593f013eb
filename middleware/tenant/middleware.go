package tenant

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storefront-gateway/metrics"
	"storefront-gateway/middleware/apierror"
	"storefront-gateway/middleware/exempt"
	"storefront-gateway/middleware/tenant/application"
	"storefront-gateway/middleware/tenant/domain"
)

// Binder resolve o tenant de uma requisição e liga o contexto dela.
type Binder struct {
	Resolver      application.Resolver
	HostFn        HostFunc
	LookupTimeout time.Duration
}

func (b Binder) host(r *http.Request) string {
	if b.HostFn == nil {
		return r.Host
	}
	return b.HostFn(r)
}

// Resolve resolve a loja do host da requisição, limitado por LookupTimeout.
func (b Binder) Resolve(r *http.Request) (domain.ResolvedStore, error) {
	host := b.host(r)
	if host == "" {
		return domain.ResolvedStore{}, domain.ErrStoreNotFound
	}

	ctx := r.Context()
	if b.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.LookupTimeout)
		defer cancel()
	}
	return b.Resolver.Resolve(ctx, host)
}

// Bind devolve o ctx da requisição já com RequestContext e ResolvedStore.
func Bind(r *http.Request, rs domain.ResolvedStore) (context.Context, domain.RequestContext) {
	rc := domain.RequestContext{RequestID: RequestID(r), StoreID: rs.StoreID}
	if rc.RequestID == "" {
		rc.RequestID = application.NewRequestID()
	}
	ctx := application.WithRequestContext(r.Context(), rc)
	return application.WithResolvedStore(ctx, rs), rc
}

// WithStoreContext resolve o tenant do host e executa fn dentro do contexto
// ligado. Falha com domain.ErrStoreNotFound se o host estiver ausente ou não
// resolver.
func WithStoreContext[T any](r *http.Request, b Binder, fn func(ctx context.Context, storeID string) (T, error)) (T, error) {
	rs, err := b.Resolve(r)
	if err != nil {
		var zero T
		return zero, err
	}
	ctx, rc := Bind(r, rs)
	return fn(ctx, rc.StoreID)
}

type Options struct {
	Binder     Binder
	Redirector application.Redirector
	Exempt     *exempt.Registry
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Middleware resolve a loja, aplica o redirect canônico e liga o contexto.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Exempt.Bypasses(r.URL.Path, exempt.Tenant) {
				ctx, rc := Bind(r, domain.ResolvedStore{})
				w.Header().Set(HeaderRequestID, rc.RequestID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			rs, err := opts.Binder.Resolve(r)
			if err != nil {
				handleResolveError(w, r, err, logger, opts.Metrics)
				return
			}

			if target, ok := opts.Redirector.ShouldRedirect(rs, r.URL.RequestURI()); ok {
				opts.Metrics.Resolution("redirect")
				opts.Metrics.Redirect()
				logger.Debug("canonical redirect",
					zap.String("store_id", rs.StoreID),
					zap.String("host", r.Host),
					zap.String("location", target),
				)
				w.Header().Set("Location", target)
				w.WriteHeader(http.StatusMovedPermanently)
				return
			}

			opts.Metrics.Resolution("found")
			ctx, rc := Bind(r, rs)
			w.Header().Set(HeaderRequestID, rc.RequestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func handleResolveError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger, m *metrics.Metrics) {
	// cliente desconectou: abandona sem ligar nada nem responder
	if r.Context().Err() != nil {
		m.Resolution("abandoned")
		logger.Debug("store resolution abandoned", zap.String("host", r.Host), zap.Error(r.Context().Err()))
		return
	}

	if errors.Is(err, domain.ErrStoreNotFound) {
		m.Resolution("not_found")
		apierror.Write(w, http.StatusNotFound, apierror.CodeStoreNotFound, "No store is configured for this host")
		return
	}

	m.Resolution("unavailable")
	logger.Error("store resolution failed", zap.String("host", r.Host), zap.Error(err))
	apierror.Write(w, http.StatusServiceUnavailable, apierror.CodeUpstreamUnavailable, "Store lookup is temporarily unavailable")
}
