// Package domain define o token CSRF e seus erros, sem dependência de net/http.
package domain

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMissing    = errors.New("csrf token missing")
	ErrTokenMalformed  = errors.New("csrf token malformed")
	ErrTokenSignature  = errors.New("csrf token signature mismatch")
	ErrTokenExpired    = errors.New("csrf token expired")
	ErrTokenFromFuture = errors.New("csrf token issued in the future")
)

// Token tem o formato "random:timestamp:signature".
//
// random e signature são hex; timestamp é Unix em milissegundos.
type Token struct {
	Random    string
	Timestamp int64
	Signature string
}

func (t Token) IssuedAt() time.Time { return time.UnixMilli(t.Timestamp) }

// Payload é a mensagem assinada: random || timestamp.
func (t Token) Payload() string {
	return t.Random + strconv.FormatInt(t.Timestamp, 10)
}

func (t Token) String() string {
	return t.Random + ":" + strconv.FormatInt(t.Timestamp, 10) + ":" + t.Signature
}

func ParseToken(s string) (Token, error) {
	if s == "" {
		return Token{}, ErrTokenMissing
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Token{}, ErrTokenMalformed
	}
	random, ts, sig := parts[0], parts[1], parts[2]
	if !isHex(random) || !isHex(sig) {
		return Token{}, ErrTokenMalformed
	}
	if ts == "" || ts[0] == '-' || ts[0] == '+' {
		return Token{}, ErrTokenMalformed
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Token{}, ErrTokenMalformed
	}
	return Token{Random: random, Timestamp: ms, Signature: sig}, nil
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
