package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowAllAcceptsAnyToken(t *testing.T) {
	v := AllowAll()
	claims, err := v.Verify(context.Background(), "anything, or even empty")
	require.NoError(t, err)
	require.Equal(t, "anonymous", claims.Subject)
}

func TestJWTManagerGenerateAndVerifyRoundTrip(t *testing.T) {
	mgr := NewJWTManager("super-secret", time.Hour)

	token, err := mgr.Generate("user-1", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := mgr.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "admin", claims.Role)
}

func TestJWTManagerRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	a := NewJWTManager("secret-a", time.Hour)
	b := NewJWTManager("secret-b", time.Hour)

	token, err := a.Generate("user-1", "admin")
	require.NoError(t, err)

	_, err = b.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	mgr := NewJWTManager("secret", -time.Minute)
	token, err := mgr.Generate("user-1", "admin")
	require.NoError(t, err)

	_, err = mgr.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestJWTManagerRejectsGarbageToken(t *testing.T) {
	mgr := NewJWTManager("secret", time.Hour)
	_, err := mgr.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}
