package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gresst/gresst/internal/models"
)

// MeResponse is the session-info payload
type MeResponse struct {
	Profile MeProfile `json:"profile"`
	Account MeAccount `json:"account"`
	Person  MePerson  `json:"person"`
	Roles   []string  `json:"roles"`
}

// MeProfile is the profile section of MeResponse
type MeProfile struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"accountId"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Status     string  `json:"status"`
	IsActive   bool    `json:"isActive"`
	PersonID   string  `json:"personId,omitempty"`
	LastAccess *string `json:"lastAccess"`
	CreatedAt  string  `json:"createdAt"`
}

// MeAccount is the account section of MeResponse
type MeAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	PersonID string `json:"personId"`
	IsActive bool   `json:"isActive"`
}

// MePerson is the person section of MeResponse
type MePerson struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ProfileResponse is the GET/PUT /api/me/profile payload
type ProfileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// UpdateProfileRequest is the PUT /api/me/profile body
type UpdateProfileRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (s *Server) currentUser(c *gin.Context) (*models.User, bool) {
	sessionData, exists := GetSessionData(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return &user, true
}

func (s *Server) getMe(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}

	status := "active"
	if !user.IsActive {
		status = "inactive"
	}

	var lastAccess *string
	if user.LastAccessAt != nil {
		v := user.LastAccessAt.UTC().Format(time.RFC3339)
		lastAccess = &v
	}

	c.JSON(http.StatusOK, MeResponse{
		Profile: MeProfile{
			ID:         user.ID,
			AccountID:  user.AccountID,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Name:       user.Name,
			Email:      user.Email,
			Status:     status,
			IsActive:   user.IsActive,
			PersonID:   user.PersonID,
			LastAccess: lastAccess,
			CreatedAt:  user.CreatedAt.UTC().Format(time.RFC3339),
		},
		Account: MeAccount{
			ID:       user.AccountID,
			Name:     user.AccountName,
			Role:     user.Role,
			Status:   status,
			PersonID: user.PersonID,
			IsActive: user.IsActive,
		},
		Person: MePerson{
			ID:    user.PersonID,
			Name:  user.Name,
			Email: user.Email,
		},
		Roles: []string{user.Role},
	})
}

func profileResponse(user *models.User) ProfileResponse {
	return ProfileResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) getProfile(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profileResponse(user))
}

func (s *Server) updateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION_ERROR"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name must not be blank", "code": "VALIDATION_ERROR"})
		return
	}

	user, ok := s.currentUser(c)
	if !ok {
		return
	}

	first, last, _ := strings.Cut(name, " ")
	updates := map[string]any{"name": name, "first_name": first, "last_name": strings.TrimSpace(last)}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	user.Name, user.FirstName, user.LastName = name, first, strings.TrimSpace(last)

	s.logger.Info().Str("user_id", user.ID).Msg("Profile updated")
	c.JSON(http.StatusOK, profileResponse(user))
}
