package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gresst/gresst/internal/auth"
	"github.com/gresst/gresst/internal/models"
)

const (
	bearerPrefix = "Bearer "
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidAuthFormat  = errors.New("invalid authorization header format")
	ErrEmptyToken         = errors.New("empty token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
)

func setSession(c *gin.Context, sessionData *auth.SessionData) {
	c.Set("session", sessionData)
}

func GetSessionData(c *gin.Context) (*auth.SessionData, bool) {
	session, exists := c.Get("session")
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*auth.SessionData)
	return sessionData, ok
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingCredentials
	}

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, code, message string) {
	log.Warn().Err(err).Msg(message)
	c.JSON(statusCode, gin.H{"error": message, "code": code})
	c.Abort()
}

// JWTAuthMiddleware accepts an access token from the Authorization header or,
// failing that, from the access cookie
func JWTAuthMiddleware(db *gorm.DB, cookieName string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var claims *auth.JWTClaims
		method := ""

		token, headerErr := extractBearerToken(c.GetHeader("Authorization"))
		if headerErr == nil {
			if parsed, err := auth.ValidateToken(token); err == nil {
				claims, method = parsed, "bearer"
			} else {
				log.Debug().Err(err).Msg("Bearer token rejected")
			}
		}

		if claims == nil {
			if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
				if parsed, err := auth.ValidateToken(cookie); err == nil {
					claims, method = parsed, "cookie"
				} else {
					log.Debug().Err(err).Msg("Access cookie rejected")
				}
			}
		}

		if claims == nil {
			switch {
			case headerErr == nil:
				respondWithError(c, log, http.StatusUnauthorized, ErrInvalidToken, "INVALID_TOKEN", "Invalid or expired token")
			case errors.Is(headerErr, ErrMissingCredentials):
				respondWithError(c, log, http.StatusUnauthorized, headerErr, "MISSING_CREDENTIALS", "Missing credentials")
			default:
				respondWithError(c, log, http.StatusUnauthorized, headerErr, "INVALID_AUTH_HEADER", "Invalid authorization header format")
			}
			return
		}

		// Verify user exists in database
		var user models.User
		if err := models.FindByID(db, claims.Subject, &user); err != nil || !user.IsActive {
			log.Warn().Err(err).Str("user_id", claims.Subject).Msg("User not found or inactive")
			respondWithError(c, log, http.StatusUnauthorized, ErrUserNotFound, "USER_NOT_FOUND", "User not found")
			return
		}

		setSession(c, &auth.SessionData{
			UserID:     user.ID,
			Email:      user.Email,
			Role:       user.Role,
			AuthMethod: method,
		})

		c.Next()
	}
}
