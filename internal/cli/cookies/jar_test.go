package cookies

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestVisibleIgnoresHttpOnly(t *testing.T) {
	jar, err := New("")
	require.NoError(t, err)

	u := mustURL(t, "https://api.example.com/api/me")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "gresst_access_token", Value: "readable", Path: "/"},
		{Name: "gresst_refresh_token", Value: "secret", Path: "/", HttpOnly: true},
	})

	value, ok := jar.Visible(u, "gresst_access_token")
	assert.True(t, ok)
	assert.Equal(t, "readable", value)

	_, ok = jar.Visible(u, "gresst_refresh_token")
	assert.False(t, ok, "HttpOnly cookies are not visible to client code")

	_, ok = jar.Visible(mustURL(t, "https://other.example.org/"), "gresst_access_token")
	assert.False(t, ok, "cookies do not leak across hosts")

	assert.Len(t, jar.Cookies(u), 2, "HttpOnly cookies are still sent")
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cookies.json")
	u := mustURL(t, "http://localhost:8080/api/auth/login")

	jar, err := New(path)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{
		{Name: "session", Value: "abc", Path: "/", HttpOnly: true, MaxAge: 3600},
		{Name: "visible", Value: "v1", Path: "/"},
	})

	reloaded, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())

	names := map[string]string{}
	for _, c := range reloaded.Cookies(mustURL(t, "http://localhost:8080/api/me")) {
		names[c.Name] = c.Value
	}
	assert.Equal(t, map[string]string{"session": "abc", "visible": "v1"}, names)

	_, ok := reloaded.Visible(u, "session")
	assert.False(t, ok, "HttpOnly flag survives a reload")
}

func TestExpiredAndDeletedCookiesAreDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	u := mustURL(t, "http://localhost:8080/")

	jar, err := New(path)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1", Path: "/"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "", Path: "/", MaxAge: -1}})
	jar.SetCookies(u, []*http.Cookie{{Name: "b", Value: "2", Path: "/", Expires: time.Now().Add(-time.Hour)}})

	assert.Equal(t, 0, jar.Len())
	assert.Empty(t, jar.Cookies(u))

	reloaded, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	u := mustURL(t, "http://localhost:8080/")

	jar, err := New(path)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1", Path: "/"}})

	require.NoError(t, jar.Clear())
	assert.Empty(t, jar.Cookies(u))

	reloaded, err := New(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Cookies(u))
}
