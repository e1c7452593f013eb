// Package headers injeta os headers de segurança em todas as respostas.
package headers

import "net/http"

// Config define os valores enviados. Campo vazio = header omitido.
type Config struct {
	ContentTypeOptions      string
	FrameOptions            string
	ReferrerPolicy          string
	StrictTransportSecurity string
}

// Default devolve a configuração do storefront; HSTS só em produção.
func Default(production bool) Config {
	c := Config{
		ContentTypeOptions: "nosniff",
		FrameOptions:       "SAMEORIGIN",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if production {
		c.StrictTransportSecurity = "max-age=31536000; includeSubDomains"
	}
	return c
}

// Security grava os headers antes do próximo handler, então valem também
// para redirects e respostas de erro dos middlewares seguintes.
func Security(c Config) func(next http.Handler) http.Handler {
	pairs := make([][2]string, 0, 4)
	for _, p := range [][2]string{
		{"X-Content-Type-Options", c.ContentTypeOptions},
		{"X-Frame-Options", c.FrameOptions},
		{"Referrer-Policy", c.ReferrerPolicy},
		{"Strict-Transport-Security", c.StrictTransportSecurity},
	} {
		if p[1] != "" {
			pairs = append(pairs, p)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, p := range pairs {
				h.Set(p[0], p[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
