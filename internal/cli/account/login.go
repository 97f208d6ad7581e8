// Package account implements the user-facing login and change-password flows on
// top of the API client and the session store.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/gresst/gresst/internal/auth"
	"github.com/gresst/gresst/internal/cli/client"
	"github.com/gresst/gresst/internal/cli/config"
	"github.com/gresst/gresst/internal/cli/session"
	"github.com/gresst/gresst/internal/cli/transport"
)

const loginFailed = "Login failed"

// API is the subset of the API client the flows need
type API interface {
	Login(ctx context.Context, username, password string) (*client.LoginResponse, error)
	Me(ctx context.Context) (*session.SessionInfo, error)
	ChangePassword(ctx context.Context, req client.ChangePasswordRequest) (*client.ChangePasswordResponse, error)
}

// Session is the subset of the session store the flows update
type Session interface {
	SetToken(token string)
	SetSessionFromSessionInfo(info *session.SessionInfo)
	SetUserInfo(displayName, accountName string)
}

// Error is a user-presentable failure of a flow
type Error struct {
	Message string
	// Validation lists the server's password requirements when it rejected the new password
	Validation *auth.PasswordValidation
	Err        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Login authenticates and establishes the session for mode. In cookie mode the
// server-set cookies carry the session and the user comes from the session-info
// endpoint; in header mode the returned access token is stored.
func Login(ctx context.Context, store Session, api API, mode config.CredentialMode, username, password string) (*client.LoginResponse, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, &Error{Message: "Username and password are required."}
	}

	resp, err := api.Login(ctx, username, password)
	if err != nil {
		return nil, &Error{Message: transport.ErrorMessage(err, loginFailed), Err: err}
	}
	if !resp.Success {
		return nil, &Error{Message: resp.ErrorMessage(loginFailed)}
	}

	if mode == config.UseCookieAuth {
		info, err := api.Me(ctx)
		if err != nil {
			return nil, &Error{Message: transport.ErrorMessage(err, loginFailed), Err: err}
		}
		store.SetSessionFromSessionInfo(info)
		return resp, nil
	}

	if resp.AccessToken == "" {
		return nil, &Error{Message: "Login response did not include an access token", Err: errMissingToken}
	}
	store.SetToken(resp.AccessToken)
	if resp.Name != "" || resp.AccountName != "" {
		store.SetUserInfo(resp.Name, resp.AccountName)
	}
	return resp, nil
}

var errMissingToken = errors.New("missing access token")
