// Package auth provides an optional API-key/bearer-token verifier the
// HTTP layer's middleware can call. Authentication is an external
// collaborator in this system, not part of its hard core, so the
// shipped default (AllowAll) is a no-op; the JWT-backed verifier below
// exists for deployments that want to plug in real auth without
// dropping the teacher's golang-jwt dependency.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the caller a verified token belongs to.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks a bearer token and returns who it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// allowAll accepts every request without checking a token, the
// default verifier when no auth is configured.
type allowAll struct{}

// AllowAll is the no-op Verifier used when authentication isn't
// configured.
func AllowAll() Verifier { return allowAll{} }

func (allowAll) Verify(context.Context, string) (*Claims, error) {
	return &Claims{Subject: "anonymous", Role: "admin"}, nil
}

// JWTVerifier validates HS256-signed bearer tokens.
type JWTVerifier struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager builds a JWTVerifier that also knows how to mint
// tokens with the given expiry, for deployments issuing their own.
func NewJWTManager(secret string, expiry time.Duration) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), expiry: expiry}
}

// Generate creates a signed JWT for the given subject/role.
func (m *JWTVerifier) Generate(subject, role string) (string, error) {
	claims := Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a token string, returning its claims.
func (m *JWTVerifier) Verify(_ context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
