package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	InitializeJWT("test-secret", time.Minute)

	token, expiresAt, err := GenerateToken(TokenIdentity{UserID: "01J", Email: "jane@example.com", Name: "Jane Doe", Role: "admin"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "01J", claims.Subject)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "Jane Doe", claims.Name)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	InitializeJWT("test-secret", time.Minute)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "01J",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "01J"},
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":    expired,
		"other key":  otherKey,
		"no subject": noSubject,
		"garbage":    "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(token)
			assert.Error(t, err)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword("Str0ng!Pass", hash))
	assert.Error(t, VerifyPassword("wrong", hash))
}

func TestRefreshTokenHash(t *testing.T) {
	token, hash, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, token, 64)
	assert.Equal(t, hash, HashRefreshToken(token))
	assert.NotEqual(t, token, hash)
}
