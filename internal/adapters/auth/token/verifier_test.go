package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("test-secret")
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		token := sign(t, "test-secret", jwt.MapClaims{
			"sub":   "voter-1",
			"email": "voter@example.com",
			"exp":   time.Now().Add(15 * time.Minute).Unix(),
		})
		claims, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "voter-1", claims.VoterID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := sign(t, "other-secret", jwt.MapClaims{
			"sub": "voter-1",
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token := sign(t, "test-secret", jwt.MapClaims{
			"sub": "voter-1",
			"exp": time.Now().Add(-time.Minute).Unix(),
		})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := sign(t, "test-secret", jwt.MapClaims{
			"exp": time.Now().Add(time.Minute).Unix(),
		})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(ctx, "garbage")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
