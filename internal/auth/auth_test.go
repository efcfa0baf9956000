package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/teamswitch/internal/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	return NewService(config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenDuration: time.Hour,
		Admins:        []config.AdminUser{{Username: "ops", PasswordHash: hash}},
	})
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestLogin(t *testing.T) {
	s := newTestService(t)

	token, err := s.Login("ops", "hunter2")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.True(t, claims.IsAdmin)

	_, err = s.Login("ops", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login("nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejects(t *testing.T) {
	s := newTestService(t)

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		defer func() { s.now = time.Now }()
		token, err := s.GenerateToken("ops")
		require.NoError(t, err)
		s.now = time.Now

		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewService(config.AuthConfig{JWTSecret: "different", Admins: []config.AdminUser{{Username: "ops"}}})
		token, err := other.GenerateToken("ops")
		require.NoError(t, err)

		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("removed admin", func(t *testing.T) {
		token, err := s.GenerateToken("former")
		require.NoError(t, err)

		_, err = s.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "ops", IsAdmin: true})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = s.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
