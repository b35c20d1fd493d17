package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"playlist-exporter/internal/apperr"
)

const testKey = "secret-access-key"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testKey, time.Hour)
	token := sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())},
	})

	id, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", id)
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier(testKey, time.Hour)

	cases := map[string]string{
		"wrong key": sign(t, jwt.SigningMethodHS256, []byte("other"), Claims{UserID: "user-1"}),
		"expired": sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{
			UserID:           "user-1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}),
		"too old": sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{
			UserID:           "user-1",
			RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))},
		}),
		"no subject": sign(t, jwt.SigningMethodHS256, []byte(testKey), Claims{}),
		"other alg":  sign(t, jwt.SigningMethodHS512, []byte(testKey), Claims{UserID: "user-1"}),
		"garbage":    "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.True(t, apperr.Is(err, apperr.KindAuthentication), "got %v", err)
		})
	}
}

func TestVerifyWithoutKey(t *testing.T) {
	_, err := NewJWTVerifier("", 0).Verify("anything")
	require.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	require.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "bearer abc"} {
		_, err := BearerToken(header)
		require.True(t, apperr.Is(err, apperr.KindAuthentication), "header %q", header)
	}
}

func TestTokenContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, Token(ctx))
	require.Equal(t, "abc.def.ghi", Token(WithToken(ctx, "abc.def.ghi")))
}
