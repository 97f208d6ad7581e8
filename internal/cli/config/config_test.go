package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.RefreshEndpoint != DefaultRefreshEndpoint {
		t.Errorf("RefreshEndpoint = %q, want %q", cfg.RefreshEndpoint, DefaultRefreshEndpoint)
	}
	if cfg.AuthCookieName != DefaultAuthCookieName {
		t.Errorf("AuthCookieName = %q, want %q", cfg.AuthCookieName, DefaultAuthCookieName)
	}
	if cfg.Mode() != UseHeaderAuth {
		t.Errorf("Mode() = %v, want header", cfg.Mode())
	}
	if cfg.TokenStore != "keyring" {
		t.Errorf("TokenStore = %q, want keyring", cfg.TokenStore)
	}
}

func TestParse_Environment(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "base url trailing slashes trimmed",
			environ: map[string]string{"GRESST_API_BASE_URL": " https://api.example.com// "},
			check: func(t *testing.T, cfg *Config) {
				if cfg.APIBaseURL != "https://api.example.com" {
					t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
				}
			},
		},
		{
			name:    "cookie mode",
			environ: map[string]string{"GRESST_API_USE_CREDENTIALS": "true"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Mode() != UseCookieAuth {
					t.Errorf("Mode() = %v, want cookie", cfg.Mode())
				}
			},
		},
		{
			name:    "blank refresh endpoint falls back to default",
			environ: map[string]string{"GRESST_REFRESH_ENDPOINT": "   "},
			check: func(t *testing.T, cfg *Config) {
				if cfg.RefreshEndpoint != DefaultRefreshEndpoint {
					t.Errorf("RefreshEndpoint = %q", cfg.RefreshEndpoint)
				}
			},
		},
		{
			name:    "dev token ignored outside dev mode",
			environ: map[string]string{"GRESST_DEV_BEARER_TOKEN": "dev-token"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.DevBearerToken != "" {
					t.Errorf("DevBearerToken = %q, want empty", cfg.DevBearerToken)
				}
			},
		},
		{
			name:    "dev token kept in dev mode",
			environ: map[string]string{"GRESST_DEV": "true", "GRESST_DEV_BEARER_TOKEN": "dev-token"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.DevBearerToken != "dev-token" {
					t.Errorf("DevBearerToken = %q, want dev-token", cfg.DevBearerToken)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(tt.environ)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParse_InvalidBool(t *testing.T) {
	if _, err := Parse(map[string]string{"GRESST_API_USE_CREDENTIALS": "maybe"}); err == nil {
		t.Fatal("Parse() expected error for invalid bool")
	}
}

func TestOverlay_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "gresst.json")
	if err := os.WriteFile(jsonPath, []byte(`{"apiBaseUrl":"https://qa.example.com","useCredentials":true,"authCookieName":"qa_token"}`), 0644); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "gresst.yaml")
	if err := os.WriteFile(yamlPath, []byte("apiBaseUrl: https://prod.example.com/\ndebugApiLog: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	jsonOverlay, err := LoadOverlay(jsonPath)
	if err != nil {
		t.Fatalf("LoadOverlay(json) error = %v", err)
	}
	cfg, _ := Parse(map[string]string{"GRESST_API_BASE_URL": "http://localhost:8080"})
	cfg.Apply(jsonOverlay)
	cfg.Sanitize()

	if cfg.APIBaseURL != "https://qa.example.com" || cfg.Mode() != UseCookieAuth || cfg.AuthCookieName != "qa_token" {
		t.Errorf("json overlay not applied: %+v", cfg)
	}

	yamlOverlay, err := LoadOverlay(yamlPath)
	if err != nil {
		t.Fatalf("LoadOverlay(yaml) error = %v", err)
	}
	cfg, _ = Parse(map[string]string{})
	cfg.Apply(yamlOverlay)
	cfg.Sanitize()

	if cfg.APIBaseURL != "https://prod.example.com" || !cfg.DebugAPILog {
		t.Errorf("yaml overlay not applied: %+v", cfg)
	}
	if cfg.Mode() != UseHeaderAuth {
		t.Errorf("absent useCredentials must keep the environment value")
	}
}

func TestOverlay_BlankValuesKeepDefaults(t *testing.T) {
	blank := "  "
	cfg, _ := Parse(map[string]string{})
	cfg.Apply(&RuntimeOverlay{AuthCookieName: &blank, RefreshEndpoint: &blank})

	if cfg.AuthCookieName != DefaultAuthCookieName || cfg.RefreshEndpoint != DefaultRefreshEndpoint {
		t.Errorf("blank overlay values must not override defaults: %+v", cfg)
	}
}

func TestFindConfigFileFrom_SearchesParents(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	url := "https://api.example.com"
	if err := SaveOverlay(filepath.Join(root, "gresst.json"), &RuntimeOverlay{APIBaseURL: &url}); err != nil {
		t.Fatal(err)
	}

	path, err := FindConfigFileFrom(nested)
	if err != nil {
		t.Fatalf("FindConfigFileFrom() error = %v", err)
	}
	if path != filepath.Join(root, "gresst.json") {
		t.Errorf("path = %q", path)
	}
}

func TestLoadOverlay_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gresst.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOverlay(path); err == nil {
		t.Fatal("LoadOverlay() expected error")
	}
}
