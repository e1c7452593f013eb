package tenant

import (
	"net/http"
	"strings"
)

const (
	HeaderRequestID     = "X-Request-Id"
	HeaderForwardedHost = "X-Forwarded-Host"
)

type HostFunc func(r *http.Request) string

// DefaultHostFunc usa X-Forwarded-Host (primeiro valor) apenas quando o proxy
// na frente é confiável; caso contrário, sempre r.Host.
func DefaultHostFunc(trustForwardedHost bool) HostFunc {
	return func(r *http.Request) string {
		if trustForwardedHost {
			if fh := r.Header.Get(HeaderForwardedHost); fh != "" {
				first, _, _ := strings.Cut(fh, ",")
				if v := strings.TrimSpace(first); v != "" {
					return v
				}
			}
		}
		return r.Host
	}
}

// RequestID devolve o X-Request-Id recebido, se presente e razoável.
func RequestID(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if v == "" || len(v) > 128 {
		return ""
	}
	return v
}
