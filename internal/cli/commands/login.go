package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/account"
	"github.com/gresst/gresst/internal/cli/prompt"
)

// NewLoginCmd creates the login command
func NewLoginCmd(rt *Runtime) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the Gresst API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, rt, username, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username (or set GRESST_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set GRESST_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(cmd *cobra.Command, rt *Runtime, username, password string) error {
	// Check for environment variables (useful for CI/CD)
	if username == "" {
		username = rt.Getenv("GRESST_USERNAME")
	}
	if password == "" {
		password = rt.Getenv("GRESST_PASSWORD")
	}

	a, err := rt.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if username == "" {
		username, err = rt.Prompter.Username(a.State.LastUsername())
		if errors.Is(err, prompt.ErrNotInteractive) {
			return fmt.Errorf("username is required in non-interactive mode (use --username flag or GRESST_USERNAME env var)")
		}
		if err != nil {
			return err
		}
	}

	// Prompt for password if not provided via flag or env var
	if password == "" {
		password, err = rt.Prompter.Password("Password")
		if errors.Is(err, prompt.ErrNotInteractive) {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or GRESST_PASSWORD env var)")
		}
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logging in to %s (%s auth)...\n", a.Config.APIBaseURL, a.Config.Mode())

	if _, err := account.Login(cmd.Context(), a.Session, a.API, a.Config.Mode(), username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	a.Session.Wait()

	if err := a.State.SetLastUsername(username); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to remember username")
	}

	fmt.Fprintln(out, "✓ Login successful!")
	printUser(out, a.Session.State().User)
	return nil
}
