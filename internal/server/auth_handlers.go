package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/gresst/gresst/internal/auth"
	"github.com/gresst/gresst/internal/models"
)

const refreshCookiePath = "/api"

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"Username" binding:"required"`
	Password string `json:"Password" binding:"required"`
}

// LoginResponse represents a login response. Failed credential checks are
// reported with success=false and a 200 status.
type LoginResponse struct {
	Success               bool     `json:"success"`
	Error                 *string  `json:"error"`
	AccessToken           string   `json:"accessToken,omitempty"`
	RefreshToken          string   `json:"refreshToken,omitempty"`
	AccessTokenType       string   `json:"accessTokenType,omitempty"`
	AccessTokenExpiresAt  string   `json:"accessTokenExpiresAt,omitempty"`
	RefreshTokenExpiresAt string   `json:"refreshTokenExpiresAt,omitempty"`
	SubjectType           string   `json:"subjectType,omitempty"`
	UserID                string   `json:"userId,omitempty"`
	AccountID             string   `json:"accountId,omitempty"`
	AccountPersonID       string   `json:"accountPersonId,omitempty"`
	PersonID              string   `json:"personId,omitempty"`
	Name                  string   `json:"name,omitempty"`
	AccountName           string   `json:"accountName,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Roles                 []string `json:"roles,omitempty"`
	CookieMessage         string   `json:"cookieMessage,omitempty"`
}

// RefreshResponse is returned by a successful refresh
type RefreshResponse struct {
	Success              bool   `json:"success"`
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresAt string `json:"accessTokenExpiresAt"`
}

// ChangePasswordRequest is the change-password body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

func loginFailure(message string) LoginResponse {
	return LoginResponse{Success: false, Error: &message}
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, loginFailure("Username and password are required"))
		return
	}

	var user models.User
	if err := s.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.logins.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusOK, loginFailure("Invalid username or password"))
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil || !user.IsActive {
		s.metrics.logins.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusOK, loginFailure("Invalid username or password"))
		return
	}

	accessToken, accessExpiresAt, refreshToken, refreshExpiresAt, err := s.issueSession(&user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	now := time.Now().UTC()
	s.db.Model(&user).Update("last_access_at", &now)

	s.setSessionCookies(c, accessToken, accessExpiresAt, refreshToken, refreshExpiresAt)
	s.metrics.logins.WithLabelValues("success").Inc()
	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User logged in")

	c.JSON(http.StatusOK, LoginResponse{
		Success:               true,
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenType:       "Bearer",
		AccessTokenExpiresAt:  accessExpiresAt.UTC().Format(time.RFC3339),
		RefreshTokenExpiresAt: refreshExpiresAt.UTC().Format(time.RFC3339),
		SubjectType:           "user",
		UserID:                user.ID,
		AccountID:             user.AccountID,
		AccountPersonID:       user.PersonID,
		PersonID:              user.PersonID,
		Name:                  user.Name,
		AccountName:           user.AccountName,
		Email:                 user.Email,
		Roles:                 []string{user.Role},
		CookieMessage:         "Session cookies set",
	})
}

// refresh exchanges the refresh cookie for a new access token, rotating the
// refresh token
func (s *Server) refresh(c *gin.Context) {
	presented, err := c.Cookie(s.config.Auth.RefreshCookieName)
	if err != nil || presented == "" {
		s.metrics.refresh.WithLabelValues("missing").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing refresh token", "code": "MISSING_REFRESH_TOKEN"})
		return
	}

	var stored models.RefreshToken
	err = s.db.Preload("User").Where("token_hash = ?", auth.HashRefreshToken(presented)).First(&stored).Error
	if err != nil || !stored.Usable(time.Now()) || !stored.User.IsActive {
		s.metrics.refresh.WithLabelValues("rejected").Inc()
		s.clearSessionCookies(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token", "code": "INVALID_REFRESH_TOKEN"})
		return
	}

	if err := s.revokeRefreshToken(&stored); err != nil {
		s.logger.Error().Err(err).Msg("Failed to revoke refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	accessToken, accessExpiresAt, refreshToken, refreshExpiresAt, err := s.issueSession(&stored.User)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.setSessionCookies(c, accessToken, accessExpiresAt, refreshToken, refreshExpiresAt)
	s.metrics.refresh.WithLabelValues("success").Inc()
	s.logger.Debug().Str("user_id", stored.UserID).Msg("Session refreshed")

	c.JSON(http.StatusOK, RefreshResponse{
		Success:              true,
		AccessToken:          accessToken,
		AccessTokenExpiresAt: accessExpiresAt.UTC().Format(time.RFC3339),
	})
}

// logout revokes the presented refresh token and clears the session cookies.
// It succeeds without a session.
func (s *Server) logout(c *gin.Context) {
	if presented, err := c.Cookie(s.config.Auth.RefreshCookieName); err == nil && presented != "" {
		var stored models.RefreshToken
		if err := s.db.Where("token_hash = ?", auth.HashRefreshToken(presented)).First(&stored).Error; err == nil {
			if err := s.revokeRefreshToken(&stored); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to revoke refresh token on logout")
			}
		}
	}

	s.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) changePassword(c *gin.Context) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currentPassword, newPassword and confirmPassword are required"})
		return
	}

	if err := s.validator.Var(req.NewPassword, "password_policy"); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			validation := auth.CheckPassword(req.NewPassword)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "Password does not meet security requirements",
				"validation": validation,
			})
			return
		}
		s.logger.Error().Err(err).Msg("Password validation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password and confirmation do not match"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := auth.VerifyPassword(req.CurrentPassword, user.PasswordHash); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}
	if req.CurrentPassword == req.NewPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be different from current password"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
		return
	}

	if err := s.db.Model(&user).Update("password_hash", hash).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Password changed")
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (s *Server) issueSession(user *models.User) (accessToken string, accessExpiresAt time.Time, refreshToken string, refreshExpiresAt time.Time, err error) {
	accessToken, accessExpiresAt, err = auth.GenerateToken(auth.TokenIdentity{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		AccountID: user.AccountID,
	})
	if err != nil {
		return
	}

	var hash string
	refreshToken, hash, err = auth.GenerateRefreshToken()
	if err != nil {
		return
	}

	refreshExpiresAt = time.Now().Add(s.config.Auth.RefreshTokenTTL)
	err = s.db.Create(&models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: refreshExpiresAt,
	}).Error
	return
}

func (s *Server) revokeRefreshToken(token *models.RefreshToken) error {
	now := time.Now()
	return s.db.Model(token).Update("revoked_at", &now).Error
}

func (s *Server) setSessionCookies(c *gin.Context, accessToken string, accessExpiresAt time.Time, refreshToken string, refreshExpiresAt time.Time) {
	secure := s.config.Auth.CookieSecure
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.Auth.AccessCookieName, accessToken, int(time.Until(accessExpiresAt).Seconds()), "/", "", secure, true)
	c.SetCookie(s.config.Auth.RefreshCookieName, refreshToken, int(time.Until(refreshExpiresAt).Seconds()), refreshCookiePath, "", secure, true)
}

func (s *Server) clearSessionCookies(c *gin.Context) {
	secure := s.config.Auth.CookieSecure
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.Auth.AccessCookieName, "", -1, "/", "", secure, true)
	c.SetCookie(s.config.Auth.RefreshCookieName, "", -1, refreshCookiePath, "", secure, true)
}
