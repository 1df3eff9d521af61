package jwt

import (
	"testing"
	"time"

	"go-clinic-appointment/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(now time.Time) *JWTService {
	s := NewJWTService(config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: time.Hour,
	})
	s.now = func() time.Time { return now }
	return s
}

func TestGenerateAndValidate_AccessToken(t *testing.T) {
	now := time.Now()
	s := newTestService(now)
	userID := uuid.New()

	token, tokenID, err := s.GenerateAccessToken(userID, "doc@example.com", "doctor")
	require.NoError(t, err)
	require.NotEmpty(t, tokenID)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "doctor", claims.Role)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, tokenID, claims.TokenID)
	assert.WithinDuration(t, now.Add(15*time.Minute), claims.ExpiresAtTime(), time.Second)
}

func TestValidateToken_Expired(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	token, _, err := newTestService(issued).GenerateAccessToken(uuid.New(), "p@example.com", "patient")
	require.NoError(t, err)

	_, err = newTestService(time.Now()).ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, _, err := newTestService(time.Now()).GenerateRefreshToken(uuid.New(), "a@example.com", "admin")
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{Secret: "other-secret", AccessExpiry: time.Minute})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := newTestService(time.Now()).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
