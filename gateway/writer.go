package gateway

import (
	"net/http"

	tenantapp "storefront-gateway/middleware/tenant/application"
)

// statusWriter guarda o status escrito e se a requisição chegou ao handler final.
type statusWriter struct {
	http.ResponseWriter
	status    int
	proceeded bool
	storeID   string
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) decision(r *http.Request) string {
	if w.proceeded {
		return DecisionProceed
	}
	switch w.status {
	case http.StatusMovedPermanently:
		return DecisionRedirect
	case http.StatusNotFound:
		return DecisionNotFound
	case http.StatusForbidden:
		return DecisionCSRFRejected
	case http.StatusTooManyRequests:
		return DecisionRateLimited
	case 0:
		if r.Context().Err() != nil {
			return DecisionAbandoned
		}
	}
	return DecisionUnavailable
}

// markStore é chamado pelo handler final para registrar a loja no span.
func (w *statusWriter) markStore(r *http.Request) {
	w.storeID = tenantapp.StoreIDFromContext(r.Context())
}
