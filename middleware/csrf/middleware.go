// Package csrf fornece o middleware HTTP de proteção CSRF.
//
// Em métodos seguros o middleware garante o cookie "csrf-token". Em métodos que
// mudam estado (fora das rotas isentas) exige um token válido, lido do header
// "x-csrf-token" ou, na falta dele, do cookie. O header tem precedência.
package csrf

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"storefront-gateway/metrics"
	"storefront-gateway/middleware/apierror"
	"storefront-gateway/middleware/csrf/application"
)

const (
	HeaderName = "X-CSRF-Token"
	CookieName = "csrf-token"
)

type Options struct {
	Guard *application.Guard
	// SecureCookie marca o cookie como Secure (produção).
	SecureCookie bool
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// TokenFromRequest aplica a precedência header > cookie.
func TokenFromRequest(r *http.Request) string {
	if v := r.Header.Get(HeaderName); v != "" {
		return v
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// WriteError responde 403 CSRF_VALIDATION_FAILED.
func WriteError(w http.ResponseWriter) {
	apierror.Write(w, http.StatusForbidden, apierror.CodeCSRFValidationFailed, "Invalid or missing CSRF token")
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if opts.Guard == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Guard.RequiresProtection(r.Method, r.URL.Path) {
				if isSafe(r.Method) {
					ensureCookie(w, r, opts, logger)
				}
				next.ServeHTTP(w, r)
				return
			}

			if err := opts.Guard.Validate(TokenFromRequest(r)); err != nil {
				reason := application.Reason(err)
				opts.Metrics.CSRFRejected(reason)
				logger.Info("csrf validation failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("reason", reason),
				)
				WriteError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TokenHandler emite um token novo (GET /api/csrf-token) e grava o cookie.
func TokenHandler(opts Options) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.Guard == nil {
			http.NotFound(w, r)
			return
		}
		tok, err := opts.Guard.Issue()
		if err != nil {
			apierror.Write(w, http.StatusInternalServerError, "CSRF_TOKEN_UNAVAILABLE", "Could not issue CSRF token")
			return
		}
		setCookie(w, tok, opts)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": tok})
	})
}

func isSafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// ensureCookie grava um token se o cookie atual estiver ausente ou inválido.
func ensureCookie(w http.ResponseWriter, r *http.Request, opts Options, logger *zap.Logger) {
	if c, err := r.Cookie(CookieName); err == nil && opts.Guard.Valid(c.Value) {
		return
	}
	tok, err := opts.Guard.Issue()
	if err != nil {
		logger.Warn("csrf token issue failed", zap.Error(err))
		return
	}
	setCookie(w, tok, opts)
}

func setCookie(w http.ResponseWriter, tok string, opts Options) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: false, // o front lê o cookie para mandar no header
		Secure:   opts.SecureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(opts.Guard.TTL().Seconds()),
	})
}
