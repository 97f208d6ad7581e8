package commands

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/client"
	"github.com/gresst/gresst/internal/cli/transport"
)

const maxDisplayNameLength = 100

// NewProfileCmd creates the profile command group
func NewProfileCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := a.API.GetProfile(cmd.Context())
			if err != nil {
				return errors.New(transport.ErrorMessage(err, "Failed to load profile"))
			}
			printProfile(cmd, profile)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update <display-name>",
		Short: "Change your display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("display name is required")
			}
			if utf8.RuneCountInString(name) > maxDisplayNameLength {
				return fmt.Errorf("display name must be at most %d characters", maxDisplayNameLength)
			}

			a, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := a.API.UpdateProfile(cmd.Context(), name)
			if err != nil {
				return errors.New(transport.ErrorMessage(err, "Failed to update profile"))
			}
			a.Session.SetUserInfo(profile.DisplayName, "")

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Profile updated")
			printProfile(cmd, profile)
			return nil
		},
	})

	return cmd
}

func printProfile(cmd *cobra.Command, p *client.Profile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  ID:    %s\n", p.ID)
	fmt.Fprintf(out, "  Name:  %s\n", p.DisplayName)
	fmt.Fprintf(out, "  Email: %s\n", p.Email)
	if p.CreatedAt != "" {
		fmt.Fprintf(out, "  Since: %s\n", p.CreatedAt)
	}
}
