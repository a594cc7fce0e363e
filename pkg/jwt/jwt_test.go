package jwt

import (
	"testing"
	"time"

	"parley/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute, time.Hour)

	token, err := m.GenerateAccessToken(entity.User{
		Id:       "u1",
		Email:    "alice@example.com",
		Username: "alice",
		Name:     "Alice",
	})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserId)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "Alice", claims.Name)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute, time.Hour)
	token, err := m.GenerateAccessToken(entity.User{Id: "u1"})
	require.NoError(t, err)

	other := NewJWTManager("different-secret", time.Minute, time.Hour)
	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, time.Hour)
	token, err := m.GenerateAccessToken(entity.User{Id: "u1"})
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute, time.Hour)
	_, err := m.ValidateAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute, time.Hour)
	a, err := m.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := m.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
