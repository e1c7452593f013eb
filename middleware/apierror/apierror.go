// Package apierror padroniza o corpo JSON das respostas de erro do gateway.
//
// Formato: {"error": {"code": "...", "message": "...", "timestamp": "RFC3339"}}
package apierror

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	CodeStoreNotFound        = "STORE_NOT_FOUND"
	CodeCSRFValidationFailed = "CSRF_VALIDATION_FAILED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeTooManyConcurrent    = "TOO_MANY_CONCURRENT_REQUESTS"
	CodeBadGateway           = "BAD_GATEWAY"
)

type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Now pode ser trocado em testes.
var Now = time.Now

func New(code, message string) Body {
	return Body{Error: Detail{
		Code:      code,
		Message:   message,
		Timestamp: Now().UTC().Format(time.RFC3339),
	}}
}

// Write escreve status + corpo JSON. Headers já definidos em w são preservados.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(New(code, message))
}
