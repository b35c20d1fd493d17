// Package auth verifies bearer credentials and carries the bearer token
// through request contexts. Token issuance lives elsewhere.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"playlist-exporter/internal/apperr"
)

// Verifier turns a bearer token into the caller's user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// Claims is the access token payload.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 access tokens signed with a shared key.
type JWTVerifier struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewJWTVerifier builds a verifier. maxAge bounds token age measured from iat;
// zero disables the check and leaves only exp.
func NewJWTVerifier(key string, maxAge time.Duration) *JWTVerifier {
	return &JWTVerifier{key: []byte(key), maxAge: maxAge, now: time.Now}
}

func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	if len(v.key) == 0 {
		return "", apperr.Authentication("token verification is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.Authentication("access token expired")
		}
		return "", apperr.Authentication("invalid access token")
	}
	if !token.Valid || claims.UserID == "" {
		return "", apperr.Authentication("invalid access token")
	}
	if v.maxAge > 0 && claims.IssuedAt != nil && v.now().Sub(claims.IssuedAt.Time) > v.maxAge {
		return "", apperr.Authentication("access token expired")
	}
	return claims.UserID, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Authentication("missing authentication")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || strings.TrimSpace(token) == "" {
		return "", apperr.Authentication("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}

type ctxKey struct{}

// WithToken stores the raw bearer token in ctx. It is not verified yet.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

// Token returns the unverified bearer token carried by ctx, or "".
func Token(ctx context.Context) string {
	token, _ := ctx.Value(ctxKey{}).(string)
	return token
}
