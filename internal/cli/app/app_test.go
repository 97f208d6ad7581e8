package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/gresst/gresst/internal/cli/auth"
	"github.com/gresst/gresst/internal/cli/config"
	"github.com/gresst/gresst/internal/cli/session"
)

func testConfig(t *testing.T, environ map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.Parse(environ)
	require.NoError(t, err)
	return cfg
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(testConfig(t, map[string]string{}), WithStateDir(t.TempDir()))
	assert.ErrorIs(t, err, ErrNoBaseURL)
}

func TestTokenStoreSelection(t *testing.T) {
	keyring.MockInit()

	tests := []struct {
		store   string
		wantErr bool
		check   func(t *testing.T, a *App)
	}{
		{store: "keyring"},
		{store: "memory"},
		{store: "file", check: func(t *testing.T, a *App) {
			a.Storage.SetToken("tok")
			_, err := os.Stat(a.State.TokensPath())
			assert.NoError(t, err)
		}},
		{store: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			cfg := testConfig(t, map[string]string{
				"GRESST_API_BASE_URL": "http://api.example.test",
				"GRESST_TOKEN_STORE":  tt.store,
			})
			a, err := New(cfg, WithStateDir(t.TempDir()))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer a.Close()

			a.Storage.SetToken("tok")
			assert.Equal(t, "tok", a.Storage.Token())
			if tt.check != nil {
				tt.check(t, a)
			}
		})
	}
}

func TestDevTokenResolvesUntilLogout(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"profile":{"id":"dev"}}`))
	}))
	defer server.Close()

	cfg := testConfig(t, map[string]string{
		"GRESST_API_BASE_URL":     server.URL,
		"GRESST_DEV":              "true",
		"GRESST_DEV_BEARER_TOKEN": "dev-token",
	})
	a, err := New(cfg, WithStateDir(t.TempDir()), WithTokenStore(auth.NewMemoryStore()), WithoutPersistence())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.API.Me(context.Background())
	require.NoError(t, err)

	a.Logout(context.Background())
	_, err = a.API.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer dev-token", ""}, seen)
	assert.Equal(t, session.StatusUnauthenticated, a.Session.Status())
}

func TestCookieModeIgnoresStoredToken(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"profile":{"id":"u1"}}`))
	}))
	defer server.Close()

	store := auth.NewMemoryStore()
	cfg := testConfig(t, map[string]string{
		"GRESST_API_BASE_URL":        server.URL,
		"GRESST_API_USE_CREDENTIALS": "true",
	})
	a, err := New(cfg, WithStateDir(t.TempDir()), WithTokenStore(store), WithoutPersistence())
	require.NoError(t, err)
	defer a.Close()

	a.Storage.SetToken("stale-token")
	require.Equal(t, "stale-token", a.Storage.Token())

	_, err = a.API.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, seen)
}
