package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Runtime overlay file names, searched in this order in every directory
var ConfigFileNames = []string{"gresst.json", "gresst.yaml", "gresst.yml"}

const (
	DefaultRefreshEndpoint = "/api/v1/authentication/refresh"
	DefaultAuthCookieName  = "gresst_access_token"
)

// CredentialMode selects how the client proves identity to the API
type CredentialMode int

const (
	// UseHeaderAuth persists the access token locally and sends it as a bearer header
	UseHeaderAuth CredentialMode = iota
	// UseCookieAuth never stores the token; the session lives in server-set cookies
	UseCookieAuth
)

func (m CredentialMode) String() string {
	if m == UseCookieAuth {
		return "cookie"
	}
	return "header"
}

// Config is the client configuration, resolved once at startup
type Config struct {
	APIBaseURL      string `env:"GRESST_API_BASE_URL"`
	UseCredentials  bool   `env:"GRESST_API_USE_CREDENTIALS" envDefault:"false"`
	RefreshEndpoint string `env:"GRESST_REFRESH_ENDPOINT" envDefault:"/api/v1/authentication/refresh"`
	AuthCookieName  string `env:"GRESST_AUTH_COOKIE_NAME" envDefault:"gresst_access_token"`
	DebugAPILog     bool   `env:"GRESST_DEBUG_API_LOG" envDefault:"false"`

	// Dev gates the static development bearer token
	Dev            bool   `env:"GRESST_DEV" envDefault:"false"`
	DevBearerToken string `env:"GRESST_DEV_BEARER_TOKEN"`

	// TokenStore is one of keyring, file, memory, redis
	TokenStore string `env:"GRESST_TOKEN_STORE" envDefault:"keyring"`
	RedisAddr  string `env:"GRESST_REDIS_ADDR" envDefault:"localhost:6379"`
	StateDir   string `env:"GRESST_STATE_DIR"`

	LogLevel  string `env:"GRESST_LOG_LEVEL" envDefault:"warn"`
	LogFormat string `env:"GRESST_LOG_FORMAT" envDefault:"console"`

	// RuntimeConfigPath is the overlay file that was applied, if any
	RuntimeConfigPath string `env:"-"`
}

// RuntimeOverlay is the per-environment file that overrides environment values
// without rebuilding or re-exporting variables.
type RuntimeOverlay struct {
	APIBaseURL      *string `json:"apiBaseUrl,omitempty" yaml:"apiBaseUrl,omitempty"`
	UseCredentials  *bool   `json:"useCredentials,omitempty" yaml:"useCredentials,omitempty"`
	RefreshEndpoint *string `json:"refreshEndpoint,omitempty" yaml:"refreshEndpoint,omitempty"`
	AuthCookieName  *string `json:"authCookieName,omitempty" yaml:"authCookieName,omitempty"`
	DebugAPILog     *bool   `json:"debugApiLog,omitempty" yaml:"debugApiLog,omitempty"`
}

// Mode returns the credential mode derived from UseCredentials
func (c *Config) Mode() CredentialMode {
	if c.UseCredentials {
		return UseCookieAuth
	}
	return UseHeaderAuth
}

// Load resolves configuration from .env files, the process environment and the
// nearest runtime overlay file.
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg, err := Parse(nil)
	if err != nil {
		return nil, err
	}

	path, err := FindConfigFile()
	if err == nil {
		overlay, err := LoadOverlay(path)
		if err != nil {
			return nil, err
		}
		cfg.Apply(overlay)
		cfg.RuntimeConfigPath = path
	}

	cfg.Sanitize()
	return cfg, nil
}

// Parse reads configuration from environ, or from the process environment when
// environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Apply overrides fields present in overlay
func (c *Config) Apply(o *RuntimeOverlay) {
	if o == nil {
		return
	}
	if o.APIBaseURL != nil {
		c.APIBaseURL = *o.APIBaseURL
	}
	if o.UseCredentials != nil {
		c.UseCredentials = *o.UseCredentials
	}
	if o.RefreshEndpoint != nil && strings.TrimSpace(*o.RefreshEndpoint) != "" {
		c.RefreshEndpoint = *o.RefreshEndpoint
	}
	if o.AuthCookieName != nil && strings.TrimSpace(*o.AuthCookieName) != "" {
		c.AuthCookieName = *o.AuthCookieName
	}
	if o.DebugAPILog != nil {
		c.DebugAPILog = *o.DebugAPILog
	}
}

// Sanitize trims values and restores defaults for blank ones
func (c *Config) Sanitize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")

	c.RefreshEndpoint = strings.TrimSpace(c.RefreshEndpoint)
	if c.RefreshEndpoint == "" {
		c.RefreshEndpoint = DefaultRefreshEndpoint
	}

	c.AuthCookieName = strings.TrimSpace(c.AuthCookieName)
	if c.AuthCookieName == "" {
		c.AuthCookieName = DefaultAuthCookieName
	}

	c.TokenStore = strings.ToLower(strings.TrimSpace(c.TokenStore))
	if c.TokenStore == "" {
		c.TokenStore = "keyring"
	}

	if !c.Dev {
		c.DevBearerToken = ""
	}
	c.DevBearerToken = strings.TrimSpace(c.DevBearerToken)
}

// FindConfigFile searches for a runtime overlay in the current directory and its parents
func FindConfigFile() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return FindConfigFileFrom(currentDir)
}

// FindConfigFileFrom searches upwards from dir until an overlay is found or the root is reached
func FindConfigFileFrom(start string) (string, error) {
	dir := start
	for {
		for _, name := range ConfigFileNames {
			configPath := filepath.Join(dir, name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("gresst.json not found in %s or any parent directory", start)
}

// LoadOverlay reads a JSON or YAML overlay file
func LoadOverlay(path string) (*RuntimeOverlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay RuntimeOverlay
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &overlay)
	default:
		err = json.Unmarshal(data, &overlay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &overlay, nil
}

// SaveOverlay writes the overlay to path as indented JSON
func SaveOverlay(path string, overlay *RuntimeOverlay) error {
	data, err := json.MarshalIndent(overlay, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
