package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storefront-gateway/middleware/apierror"
	"storefront-gateway/middleware/ratelimit/application"
	"storefront-gateway/middleware/ratelimit/domain"
	"storefront-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (testes).
	Pool   domain.SlotPool
	Logger *zap.Logger
}

// ConcurrencyMiddleware limita requisições simultâneas. Sem vaga dentro do
// timeout responde 503 TOO_MANY_CONCURRENT_REQUESTS.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	pool := opts.Pool
	if pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		pool = infra.NewChanPool(opts.Max)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				// cliente foi embora: não há para quem responder
				if !errors.Is(err, domain.ErrNoSlot) {
					return
				}
				logger.Warn("concurrency limit reached",
					zap.Int("in_use", pool.InUse()),
					zap.Int("max", pool.Cap()),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set(HeaderRetryAfter, "1")
				apierror.Write(w, http.StatusServiceUnavailable, apierror.CodeTooManyConcurrent, "Server is busy, please retry")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
