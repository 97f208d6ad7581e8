package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gresst/gresst/internal/cli/transport"
)

// NewRequestCmd creates the request command, a raw authenticated API call
func NewRequestCmd(rt *Runtime) *cobra.Command {
	var method, data string
	var headers []string

	cmd := &cobra.Command{
		Use:   "request <path>",
		Short: "Send an authenticated request to the API and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := http.Header{}
			for _, kv := range headers {
				name, value, ok := strings.Cut(kv, ":")
				if !ok {
					return fmt.Errorf("invalid header %q (expected Name: value)", kv)
				}
				h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			opts := transport.RequestOptions{Method: strings.ToUpper(method), Headers: h}
			if data != "" {
				opts.Body = []byte(data)
				if !cmd.Flags().Changed("method") {
					opts.Method = http.MethodPost
				}
			}

			a, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			resp, err := a.Transport.Request(cmd.Context(), args[0], opts)
			if err != nil {
				var httpErr *transport.HTTPError
				if errors.As(err, &httpErr) && httpErr.Body != nil {
					printBody(cmd, httpErr.Body)
				}
				return err
			}

			if resp.IsJSON() {
				var pretty bytes.Buffer
				if json.Indent(&pretty, resp.Body, "", "  ") == nil {
					fmt.Fprintln(out, pretty.String())
					return nil
				}
			}
			fmt.Fprintln(out, resp.Text())
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body (JSON); implies POST unless --method is set")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header, e.g. -H 'X-Trace: 1'")
	return cmd
}

func printBody(cmd *cobra.Command, body any) {
	out := cmd.ErrOrStderr()
	if s, ok := body.(string); ok {
		fmt.Fprintln(out, s)
		return
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(out, string(data))
}
