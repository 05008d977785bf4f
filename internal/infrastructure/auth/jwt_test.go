package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(expiration time.Duration) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-characters",
		AccessTokenExpiration: expiration,
		Issuer:                "schoolerp-test",
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestJWTService(time.Hour)
	schoolID := uuid.New()
	userID := uuid.New()

	token, err := svc.GenerateToken(GenerateTokenInput{
		SchoolID: schoolID,
		UserID:   userID,
		Username: "r.mehta",
		Role:     RoleAccountant,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)

	claims, err := svc.ValidateToken(token.AccessToken)
	require.NoError(t, err)

	gotSchool, err := claims.GetSchoolUUID()
	require.NoError(t, err)
	assert.Equal(t, schoolID, gotSchool)

	gotUser, err := claims.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)

	assert.Equal(t, "r.mehta", claims.Username)
	assert.Equal(t, RoleAccountant, claims.Role)
	assert.False(t, claims.IsAdmin())
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newTestJWTService(-time.Minute)

	token, err := svc.GenerateToken(GenerateTokenInput{
		SchoolID: uuid.New(),
		UserID:   uuid.New(),
		Username: "r.mehta",
		Role:     RoleAccountant,
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenSignedWithDifferentSecret(t *testing.T) {
	svc := newTestJWTService(time.Hour)
	other := NewJWTService(config.JWTConfig{
		Secret:                "another-secret-key-at-least-32-chars!",
		AccessTokenExpiration: time.Hour,
		Issuer:                "schoolerp-test",
	})

	token, err := other.GenerateToken(GenerateTokenInput{
		SchoolID: uuid.New(),
		UserID:   uuid.New(),
		Username: "r.mehta",
		Role:     RoleAdmin,
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbageToken(t *testing.T) {
	svc := newTestJWTService(time.Hour)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdminRole(t *testing.T) {
	svc := newTestJWTService(time.Hour)

	token, err := svc.GenerateToken(GenerateTokenInput{
		SchoolID: uuid.New(),
		UserID:   uuid.New(),
		Username: "principal",
		Role:     RoleAdmin,
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
}
