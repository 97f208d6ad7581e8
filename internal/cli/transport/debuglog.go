package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DebugLog appends request, response and error entries for diagnosing URL,
// credential and CORS problems. A nil *DebugLog records nothing.
type DebugLog struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewDebugLog writes entries to w
func NewDebugLog(w io.Writer) *DebugLog {
	return &DebugLog{w: w, now: time.Now}
}

// OpenDebugLog appends entries to the file at path, creating it if needed
func OpenDebugLog(path string) (*DebugLog, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create debug log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	return NewDebugLog(f), f, nil
}

// ReadDebugLog renders the log file at path with a header describing the client setup
func ReadDebugLog(path, baseURL string, useCredentials bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read debug log: %w", err)
	}

	if baseURL == "" {
		baseURL = "(empty)"
	}
	header := strings.Join([]string{
		"API debug log",
		"Generated: " + time.Now().UTC().Format(time.RFC3339Nano),
		"apiBaseUrl: " + baseURL,
		fmt.Sprintf("useCredentials: %t", useCredentials),
		"---",
	}, "\n")

	body := strings.TrimRight(string(data), "\n")
	if body == "" {
		return header + "\n", nil
	}
	return header + "\n" + body + "\n", nil
}

func (l *DebugLog) request(method, url string, policy CredentialsPolicy, hasAuth bool) {
	if l == nil {
		return
	}
	auth := "no"
	if hasAuth {
		auth = "yes"
	}
	l.write("request", method+" "+url, strings.Join([]string{
		"credentials: " + string(policy),
		"Authorization header: " + auth,
	}, "\n"))
}

func (l *DebugLog) response(url string, status int, statusText string, ok bool, errBody any) {
	if l == nil {
		return
	}
	kind := "response"
	if !ok {
		kind = "error"
	}

	detail := ""
	switch b := errBody.(type) {
	case nil:
	case string:
		if b != "" {
			detail = "Response body:\n" + b
		}
	default:
		if data, err := json.MarshalIndent(b, "", "  "); err == nil {
			detail = "Response body:\n" + string(data)
		}
	}
	if detail == "" && !ok {
		detail = "Check CORS Allow-Origin and Allow-Credentials on the API, and cookie SameSite/Secure/Domain for cross-origin use."
	}

	l.write(kind, fmt.Sprintf("%d %s %s", status, statusText, url), detail)
}

func (l *DebugLog) info(message, detail string) {
	if l == nil {
		return
	}
	l.write("info", message, detail)
}

func (l *DebugLog) write(kind, message, detail string) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", l.now().UTC().Format(time.RFC3339Nano), strings.ToUpper(kind), message)
	if detail != "" {
		b.WriteString("\n  ")
		b.WriteString(strings.ReplaceAll(detail, "\n", "\n  "))
	}
	b.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, b.String())
}

// ClearDebugLog removes the log file at path
func ClearDebugLog(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear debug log: %w", err)
	}
	return nil
}
