package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret []byte
	jwtTTL    = 15 * time.Minute
)

// JWTClaims are the access token claims. The subject is the user ID.
type JWTClaims struct {
	Email     string `json:"email,omitempty"`
	Name      string `json:"unique_name,omitempty"`
	Role      string `json:"role,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	jwt.RegisteredClaims
}

// InitializeJWT sets the JWT secret key and the access token lifetime
func InitializeJWT(secret string, ttl time.Duration) {
	jwtSecret = []byte(secret)
	if ttl > 0 {
		jwtTTL = ttl
	}
}

// TokenIdentity is what an access token asserts about its user
type TokenIdentity struct {
	UserID    string
	Email     string
	Name      string
	Role      string
	AccountID string
}

// GenerateToken creates a signed access token and returns it with its expiry
func GenerateToken(id TokenIdentity) (string, time.Time, error) {
	if len(jwtSecret) == 0 {
		return "", time.Time{}, fmt.Errorf("JWT secret not initialized")
	}

	now := time.Now()
	expiresAt := now.Add(jwtTTL)
	claims := JWTClaims{
		Email:     id.Email,
		Name:      id.Name,
		Role:      id.Role,
		AccountID: id.AccountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("JWT secret not initialized")
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
