package session

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role claim as issued by ASP.NET-style identity providers
const msRoleClaim = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"

var payloadParser = jwt.NewParser()

// DecodeClaims reads the payload of a JWT without verifying its signature or
// inspecting its header. The backend validates tokens; claims here only feed the
// display layer. Malformed tokens yield nil.
func DecodeClaims(token string) jwt.MapClaims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, err := payloadParser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	return claims
}

// UserFromClaims maps sub → ID and email → Email. Claims without a string subject
// yield nil.
func UserFromClaims(claims jwt.MapClaims) *User {
	if claims == nil {
		return nil
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil
	}

	user := &User{
		ID:          sub,
		Email:       stringClaim(claims, "email"),
		DisplayName: stringClaim(claims, "unique_name"),
		Role:        stringClaim(claims, "role"),
	}
	if user.Role == "" {
		user.Role = stringClaim(claims, msRoleClaim)
	}
	return user
}

// UserFromToken decodes the identity carried by token, or nil when unreadable
func UserFromToken(token string) *User {
	return UserFromClaims(DecodeClaims(token))
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}
