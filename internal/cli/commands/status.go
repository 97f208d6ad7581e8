package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/session"
)

type statusOutput struct {
	Status             session.Status `json:"status"`
	APIBaseURL         string         `json:"apiBaseUrl"`
	Mode               string         `json:"mode"`
	CookieSessionValid bool           `json:"cookieSessionValid"`
	User               *session.User  `json:"user,omitempty"`
}

// NewStatusCmd creates the status command
func NewStatusCmd(rt *Runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			state := a.Session.State()
			result := statusOutput{
				Status:             state.Status,
				APIBaseURL:         a.Config.APIBaseURL,
				Mode:               a.Config.Mode().String(),
				CookieSessionValid: state.CookieSessionValid,
				User:               state.User,
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintf(out, "Status: %s\n", result.Status)
			fmt.Fprintf(out, "  API:  %s (%s auth)\n", result.APIBaseURL, result.Mode)
			if result.Status == session.StatusAuthenticated {
				printUser(out, result.User)
			} else {
				fmt.Fprintln(out, "\nRun 'gresst login' to authenticate")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")
	return cmd
}

func printUser(out io.Writer, u *session.User) {
	if u == nil {
		return
	}
	name := u.DisplayName
	if name == "" {
		name = u.ID
	}
	if u.Email != "" {
		fmt.Fprintf(out, "  User: %s (%s)\n", name, u.Email)
	} else {
		fmt.Fprintf(out, "  User: %s\n", name)
	}
	if u.AccountName != "" {
		fmt.Fprintf(out, "  Account: %s\n", u.AccountName)
	}
	if u.Role != "" {
		fmt.Fprintf(out, "  Role: %s\n", u.Role)
	}
}
