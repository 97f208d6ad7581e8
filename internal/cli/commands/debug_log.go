package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/transport"
	"github.com/gresst/gresst/internal/cli/userconfig"
)

// NewDebugLogCmd creates the debug-log command
func NewDebugLogCmd(rt *Runtime) *cobra.Command {
	var clearLog bool

	cmd := &cobra.Command{
		Use:   "debug-log",
		Short: "Print or clear the API debug log (enable with GRESST_DEBUG_API_LOG=true)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.config()
			if err != nil {
				return err
			}
			state, err := userconfig.DefaultDir(cfg.StateDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if clearLog {
				if err := transport.ClearDebugLog(state.DebugLogPath()); err != nil {
					return err
				}
				fmt.Fprintln(out, "✓ Debug log cleared")
				return nil
			}

			text, err := transport.ReadDebugLog(state.DebugLogPath(), cfg.APIBaseURL, cfg.UseCredentials)
			if err != nil {
				return err
			}
			fmt.Fprint(out, text)
			if !cfg.DebugAPILog {
				fmt.Fprintln(cmd.ErrOrStderr(), "\nNote: debug logging is off; set GRESST_DEBUG_API_LOG=true or debugApiLog in gresst.json")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearLog, "clear", false, "Delete the log file")
	return cmd
}
