package client

import (
	"context"
	"strings"

	"github.com/gresst/gresst/internal/cli/session"
	"github.com/gresst/gresst/internal/cli/transport"
)

const (
	LoginEndpoint          = "/api/auth/login"
	LogoutEndpoint         = "/api/auth/logout"
	MeEndpoint             = "/api/me"
	ProfileEndpoint        = "/api/me/profile"
	ChangePasswordEndpoint = "/api/v1/authentication/change-password"
)

// Client represents an HTTP client for the Gresst API
type Client struct {
	transport *transport.Client
}

// New creates a new API client on top of the shared transport
func New(t *transport.Client) *Client {
	return &Client{transport: t}
}

// Transport returns the underlying request layer
func (c *Client) Transport() *transport.Client {
	return c.transport
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Success               bool     `json:"success"`
	Error                 *string  `json:"error"`
	AccessToken           string   `json:"accessToken"`
	RefreshToken          string   `json:"refreshToken"`
	AccessTokenType       string   `json:"accessTokenType"`
	AccessTokenExpiresAt  string   `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt string   `json:"refreshTokenExpiresAt"`
	SubjectType           string   `json:"subjectType"`
	UserID                string   `json:"userId"`
	AccountID             string   `json:"accountId"`
	AccountPersonID       string   `json:"accountPersonId"`
	PersonID              string   `json:"personId"`
	Name                  string   `json:"name"`
	AccountName           string   `json:"accountName"`
	Email                 string   `json:"email"`
	Roles                 []string `json:"roles"`
	CookieMessage         string   `json:"cookieMessage,omitempty"`
}

// ErrorMessage returns the server's error text, or fallback when there is none
func (r *LoginResponse) ErrorMessage(fallback string) string {
	if r.Error != nil && strings.TrimSpace(*r.Error) != "" {
		return *r.Error
	}
	return fallback
}

// Login authenticates with username and password. The username is trimmed.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := transport.Post[LoginResponse](ctx, c.transport, LoginEndpoint, LoginRequest{
		Username: strings.TrimSpace(username),
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me fetches the current session info
func (c *Client) Me(ctx context.Context) (*session.SessionInfo, error) {
	info, err := transport.Get[session.SessionInfo](ctx, c.transport, MeEndpoint)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Profile is the user profile
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	CreatedAt   string `json:"createdAt"`
}

// GetProfile fetches the user profile; the display name is trimmed
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	profile, err := transport.Get[Profile](ctx, c.transport, ProfileEndpoint)
	if err != nil {
		return nil, err
	}
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	return &profile, nil
}

// UpdateProfileRequest is the profile update body
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// UpdateProfile changes the display name
func (c *Client) UpdateProfile(ctx context.Context, name string) (*Profile, error) {
	profile, err := transport.Put[Profile](ctx, c.transport, ProfileEndpoint, UpdateProfileRequest{Name: name})
	if err != nil {
		return nil, err
	}
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	return &profile, nil
}

// ChangePasswordRequest is the change-password body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePasswordResponse is the 200 response
type ChangePasswordResponse struct {
	Message string `json:"message"`
}

// ChangePassword submits a password change
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*ChangePasswordResponse, error) {
	resp, err := transport.Post[ChangePasswordResponse](ctx, c.transport, ChangePasswordEndpoint, req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the server to end the cookie session
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.transport.Request(ctx, LogoutEndpoint, transport.RequestOptions{Method: "POST", Body: []byte("{}")})
	return err
}
