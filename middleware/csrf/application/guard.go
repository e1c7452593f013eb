// Package application contém a regra do CSRF: quais requisições precisam de
// proteção, emissão e validação de tokens. Não conhece net/http.
package application

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-gateway/middleware/csrf/domain"
	"storefront-gateway/middleware/exempt"
)

const (
	DefaultTTL       = 24 * time.Hour
	DefaultClockSkew = 5 * time.Minute
	randomBytes      = 32
)

// Guard assina e valida tokens com HMAC-SHA256.
type Guard struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
	exempt *exempt.Registry
}

type Option func(*Guard)

func WithTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

func WithClockSkew(d time.Duration) Option {
	return func(g *Guard) {
		if d >= 0 {
			g.skew = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithExempt(reg *exempt.Registry) Option {
	return func(g *Guard) { g.exempt = reg }
}

func NewGuard(secret []byte, opts ...Option) (*Guard, error) {
	if len(secret) == 0 {
		return nil, errors.New("csrf secret is required")
	}
	g := &Guard{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		skew:   DefaultClockSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Guard) TTL() time.Duration { return g.ttl }

// RequiresProtection: métodos que mudam estado, fora das rotas isentas.
func (g *Guard) RequiresProtection(method, path string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
	default:
		return false
	}
	return !g.exempt.Bypasses(path, exempt.CSRF)
}

// Issue gera um token novo assinado com o instante atual.
func (g *Guard) Issue() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf random: %w", err)
	}
	t := domain.Token{Random: hex.EncodeToString(b), Timestamp: g.now().UnixMilli()}
	t.Signature = g.sign(t)
	return t.String(), nil
}

// Validate devolve nil se o token for autêntico e estiver dentro do TTL.
func (g *Guard) Validate(token string) error {
	t, err := domain.ParseToken(strings.TrimSpace(token))
	if err != nil {
		return err
	}

	want := g.sign(t)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(t.Signature)), []byte(want)) != 1 {
		return domain.ErrTokenSignature
	}

	age := g.now().Sub(t.IssuedAt())
	if age > g.ttl {
		return domain.ErrTokenExpired
	}
	if age < -g.skew {
		return domain.ErrTokenFromFuture
	}
	return nil
}

// Valid é o atalho booleano de Validate.
func (g *Guard) Valid(token string) bool { return g.Validate(token) == nil }

func (g *Guard) sign(t domain.Token) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(t.Payload()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Reason mapeia o erro de validação para um rótulo curto (métricas/logs).
func Reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenMissing):
		return "missing"
	case errors.Is(err, domain.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, domain.ErrTokenSignature):
		return "signature"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenFromFuture):
		return "future"
	default:
		return "unknown"
	}
}
