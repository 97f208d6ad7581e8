package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/account"
	"github.com/gresst/gresst/internal/cli/prompt"
)

// NewChangePasswordCmd creates the change-password command
func NewChangePasswordCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change your password",
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := readPasswordChange(rt)
			if err != nil {
				return err
			}

			a, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			msg, err := account.ChangePassword(cmd.Context(), a.API, form)
			if err != nil {
				var accErr *account.Error
				if errors.As(err, &accErr) && accErr.Validation != nil {
					for _, req := range accErr.Validation.Requirements {
						mark := "✗"
						if req.Met {
							mark = "✓"
						}
						fmt.Fprintf(out, "  %s %s\n", mark, req.Message)
					}
				}
				return err
			}

			fmt.Fprintf(out, "✓ %s\n", msg)
			return nil
		},
	}
}

// readPasswordChange reads the form from GRESST_CURRENT_PASSWORD/GRESST_NEW_PASSWORD
// or prompts for it. Passwords are never accepted as flags.
func readPasswordChange(rt *Runtime) (account.PasswordChange, error) {
	form := account.PasswordChange{
		CurrentPassword: rt.Getenv("GRESST_CURRENT_PASSWORD"),
		NewPassword:     rt.Getenv("GRESST_NEW_PASSWORD"),
	}
	form.ConfirmPassword = form.NewPassword

	fields := []struct {
		label string
		value *string
	}{
		{"Current password", &form.CurrentPassword},
		{"New password", &form.NewPassword},
		{"Confirm new password", &form.ConfirmPassword},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		v, err := rt.Prompter.Password(f.label)
		if errors.Is(err, prompt.ErrNotInteractive) {
			return form, fmt.Errorf("passwords are required in non-interactive mode (set GRESST_CURRENT_PASSWORD and GRESST_NEW_PASSWORD)")
		}
		if err != nil {
			return form, err
		}
		*f.value = v
	}
	return form, nil
}
