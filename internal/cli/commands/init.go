package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/config"
)

type initOptions struct {
	useCredentials bool
	authCookieName string
	debugAPILog    bool
}

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init <api-base-url>",
		Short: "Create or update gresst.json in the current directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currentDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			return runInit(cmd, currentDir, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.useCredentials, "use-credentials", false, "Use the cookie session instead of a stored bearer token")
	cmd.Flags().StringVar(&opts.authCookieName, "auth-cookie-name", "", "Name of a readable access-token cookie")
	cmd.Flags().BoolVar(&opts.debugAPILog, "debug-api-log", false, "Record requests and responses in the API debug log")

	return cmd
}

func runInit(cmd *cobra.Command, dir, baseURL string, opts initOptions) error {
	configPath := filepath.Join(dir, config.ConfigFileNames[0])

	overlay := &config.RuntimeOverlay{}
	isNewConfig := true

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		overlay, err = config.LoadOverlay(configPath)
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		isNewConfig = false
	}

	candidate := &config.Config{}
	candidate.Apply(&config.RuntimeOverlay{APIBaseURL: &baseURL})
	candidate.Sanitize()
	if candidate.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}
	overlay.APIBaseURL = &candidate.APIBaseURL

	flags := cmd.Flags()
	if flags.Changed("use-credentials") || isNewConfig {
		overlay.UseCredentials = &opts.useCredentials
	}
	if flags.Changed("auth-cookie-name") {
		overlay.AuthCookieName = &opts.authCookieName
	}
	if flags.Changed("debug-api-log") {
		overlay.DebugAPILog = &opts.debugAPILog
	}

	if err := config.SaveOverlay(configPath, overlay); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if isNewConfig {
		fmt.Fprintf(out, "✓ Created ./%s for %s\n", config.ConfigFileNames[0], candidate.APIBaseURL)
	} else {
		fmt.Fprintf(out, "✓ Updated ./%s for %s\n", config.ConfigFileNames[0], candidate.APIBaseURL)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  Run 'gresst login' to authenticate")

	return nil
}
