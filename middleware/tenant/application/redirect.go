package application

import (
	"strings"

	"storefront-gateway/middleware/tenant/domain"
)

// Redirector decide o redirect canônico (sempre 301, quem responde é o caller).
type Redirector struct {
	// Production usa https; fora de produção, http.
	Production bool
}

func (r Redirector) Scheme() string {
	if r.Production {
		return "https"
	}
	return "http"
}

// ShouldRedirect devolve a URL de destino quando o host não é o canônico.
// requestURI é path + query, preservados sem alteração.
func (r Redirector) ShouldRedirect(res domain.ResolvedStore, requestURI string) (string, bool) {
	if !res.NeedsCanonicalRedirect || res.PrimaryDomain == "" {
		return "", false
	}
	if requestURI == "" {
		requestURI = "/"
	} else if !strings.HasPrefix(requestURI, "/") {
		requestURI = "/" + requestURI
	}
	return r.Scheme() + "://" + res.PrimaryDomain + requestURI, true
}
