package account

import (
	"context"
	"errors"
	"strings"

	"github.com/gresst/gresst/internal/auth"
	"github.com/gresst/gresst/internal/cli/client"
	"github.com/gresst/gresst/internal/cli/transport"
)

const changePasswordFailed = "Failed to change password"

// PasswordChange is the change-password form
type PasswordChange struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// Validate applies the submit-time checks in order and returns the first failure,
// or "" when the form can be sent.
func (p PasswordChange) Validate() string {
	if strings.TrimSpace(p.CurrentPassword) == "" {
		return "Current password is required."
	}
	if p.NewPassword == "" {
		return "New password is required."
	}
	if label := auth.FirstUnmetRule(p.NewPassword); label != "" {
		return label
	}
	if p.NewPassword != p.ConfirmPassword {
		return "New password and confirmation do not match."
	}
	if p.NewPassword == p.CurrentPassword {
		return "New password must be different from current password."
	}
	return ""
}

type changePasswordErrorBody struct {
	Error      string                   `json:"error"`
	Validation *auth.PasswordValidation `json:"validation"`
}

// ChangePassword validates the form and submits it. A rejected request returns
// an *Error carrying the server's message and, for policy failures, its
// requirement list.
func ChangePassword(ctx context.Context, api API, form PasswordChange) (string, error) {
	if msg := form.Validate(); msg != "" {
		return "", &Error{Message: msg}
	}

	resp, err := api.ChangePassword(ctx, client.ChangePasswordRequest{
		CurrentPassword: form.CurrentPassword,
		NewPassword:     form.NewPassword,
		ConfirmPassword: form.ConfirmPassword,
	})
	if err != nil {
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) {
			var body changePasswordErrorBody
			if httpErr.DecodeBody(&body) && strings.TrimSpace(body.Error) != "" {
				return "", &Error{Message: body.Error, Validation: body.Validation, Err: err}
			}
		}
		return "", &Error{Message: transport.ErrorMessage(err, changePasswordFailed), Err: err}
	}

	if resp.Message == "" {
		return "Password changed successfully", nil
	}
	return resp.Message, nil
}
