// Package exempt mantém o registro ordenado de caminhos isentos.
//
// As regras são dados (não condicionais espalhadas): a primeira regra que casa
// com o path decide quais políticas são ignoradas.
package exempt

import (
	"path"
	"strings"
)

// Bypass indica quais políticas uma regra desliga.
type Bypass uint8

const (
	CSRF Bypass = 1 << iota
	RateLimit
	Tenant
)

func (b Bypass) Has(flag Bypass) bool { return b&flag != 0 }

// Matcher decide se um path pertence a uma regra.
type Matcher func(p string) bool

func Prefix(prefix string) Matcher {
	return func(p string) bool { return strings.HasPrefix(p, prefix) }
}

func Exact(values ...string) Matcher {
	return func(p string) bool {
		for _, v := range values {
			if p == v {
				return true
			}
		}
		return false
	}
}

// Extension casa pela extensão do último segmento (ex: ".css").
func Extension(exts ...string) Matcher {
	return func(p string) bool {
		ext := strings.ToLower(path.Ext(p))
		if ext == "" {
			return false
		}
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

func AnyOf(ms ...Matcher) Matcher {
	return func(p string) bool {
		for _, m := range ms {
			if m(p) {
				return true
			}
		}
		return false
	}
}

type Rule struct {
	Name   string
	Match  Matcher
	Bypass Bypass
}

type Registry struct {
	rules []Rule
}

func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: append([]Rule(nil), rules...)}
}

// Lookup devolve a primeira regra que casa com p.
func (r *Registry) Lookup(p string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	for _, rule := range r.rules {
		if rule.Match != nil && rule.Match(p) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Bypasses informa se a regra vencedora para p desliga a política flag.
func (r *Registry) Bypasses(p string, flag Bypass) bool {
	rule, ok := r.Lookup(p)
	return ok && rule.Bypass.Has(flag)
}

func (r *Registry) Rules() []Rule {
	if r == nil {
		return nil
	}
	return append([]Rule(nil), r.rules...)
}

// Default é o registro padrão do storefront.
func Default() *Registry {
	return NewRegistry(
		Rule{Name: "auth-callbacks", Match: Prefix("/api/auth/"), Bypass: CSRF},
		Rule{Name: "webhooks", Match: Prefix("/api/webhooks/"), Bypass: CSRF},
		Rule{Name: "health", Match: Exact("/api/health", "/healthz"), Bypass: RateLimit | Tenant},
		Rule{
			Name: "static-assets",
			Match: AnyOf(
				Prefix("/_next/static/"),
				Prefix("/_next/image"),
				Prefix("/static/"),
				Exact("/favicon.ico", "/robots.txt"),
			),
			Bypass: RateLimit,
		},
		Rule{
			Name:   "static-files",
			Match:  Extension(".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".woff", ".woff2"),
			Bypass: RateLimit,
		},
	)
}
