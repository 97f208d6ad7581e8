package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gresst/gresst/internal/cli/authevent"
	"github.com/gresst/gresst/internal/cli/config"
)

type memStorage struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *memStorage) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *memStorage) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *memStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
}

// fakeFetcher answers Me with info/err, optionally blocking until release is closed
type fakeFetcher struct {
	info    *SessionInfo
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (f *fakeFetcher) Me(ctx context.Context) (*SessionInfo, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.info, f.err
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newStore(mode config.CredentialMode, storage TokenStorage, fetcher SessionInfoFetcher, signal UnauthorizedSource) *Store {
	return New(Options{
		Mode:         mode,
		Storage:      storage,
		Fetcher:      fetcher,
		Unauthorized: signal,
		Logger:       zerolog.Nop(),
	})
}

func TestDeriveStatus(t *testing.T) {
	user := &User{ID: "1"}
	tests := []struct {
		name        string
		token       string
		user        *User
		cookieValid bool
		checking    bool
		want        Status
	}{
		{"nothing", "", nil, false, false, StatusUnauthenticated},
		{"check pending", "", nil, false, true, StatusLoading},
		{"check pending wins over token", "tok", user, false, true, StatusLoading},
		{"token without user", "tok", nil, false, false, StatusLoading},
		{"token with user", "tok", user, false, false, StatusAuthenticated},
		{"cookie session without user", "", nil, true, false, StatusLoading},
		{"cookie session with user", "", user, true, false, StatusAuthenticated},
		{"user without credential", "", user, false, false, StatusUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.token, tt.user, tt.cookieValid, tt.checking))
		})
	}
}

func TestUserFromToken_Malformed(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	noSub := base64.RawURLEncoding.EncodeToString([]byte(`{"email":"a@b.c"}`))
	numericSub := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":42}`))

	tokens := map[string]string{
		"empty":              "",
		"one segment":        "abc",
		"two segments":       "abc.def",
		"four segments":      "a.b.c.d",
		"invalid base64":     header + ".!!!$$$.sig",
		"invalid json":       header + "." + notJSON + ".sig",
		"missing subject":    header + "." + noSub + ".sig",
		"non-string sub":     header + "." + numericSub + ".sig",
		"garbage header":     "%%%." + noSub + ".sig",
		"whitespace only":    "   ",
		"dots only":          "..",
		"unicode nonsense":   "ü.ö.ä",
		"bearer prefix kept": "Bearer " + header + "." + noSub + ".sig",
	}

	for name, token := range tokens {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Nil(t, UserFromToken(token))
			})
		})
	}
}

func TestUserFromToken_Claims(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":         "user-7",
		"email":       "jane@example.com",
		"unique_name": "Jane",
		msRoleClaim:   "AccountAdministrator",
	})

	user := UserFromToken(token)
	require.NotNil(t, user)
	assert.Equal(t, "user-7", user.ID)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "Jane", user.DisplayName)
	assert.Equal(t, "AccountAdministrator", user.Role)
}

func TestUserFromToken_IgnoresHeader(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1"}`))

	for name, header := range map[string]string{
		"no alg":          `{"typ":"JWT"}`,
		"unknown alg":     `{"alg":"XYZ999","typ":"JWT"}`,
		"header not json": `not json`,
	} {
		t.Run(name, func(t *testing.T) {
			token := base64.RawURLEncoding.EncodeToString([]byte(header)) + "." + payload + ".sig"
			user := UserFromToken(token)
			require.NotNil(t, user)
			assert.Equal(t, "u1", user.ID)
		})
	}
}

func TestUserFromSessionInfo(t *testing.T) {
	user := UserFromSessionInfo(&SessionInfo{
		Profile: Profile{Name: "  Jane Doe "},
		Account: Account{Name: " "},
		Roles:   []string{"User"},
	})

	require.NotNil(t, user)
	assert.Equal(t, PlaceholderUserID, user.ID)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.Equal(t, "", user.AccountName)
	assert.Equal(t, "User", user.Role)
	assert.Nil(t, UserFromSessionInfo(nil))
}

func TestHeaderMode_SetTokenAuthenticates(t *testing.T) {
	storage := &memStorage{}
	fetcher := &fakeFetcher{err: errors.New("offline")}
	store := newStore(config.UseHeaderAuth, storage, fetcher, nil)
	defer store.Close()

	store.Mount(context.Background())
	store.Wait()
	assert.Equal(t, StatusUnauthenticated, store.Status())
	assert.Equal(t, int32(0), fetcher.calls.Load(), "no token means no session-info fetch in header mode")

	token := signToken(t, jwt.MapClaims{"sub": "user-42", "email": "a@example.com"})
	store.SetToken(token)

	state := store.State()
	assert.Equal(t, StatusAuthenticated, state.Status)
	require.NotNil(t, state.User)
	assert.Equal(t, "user-42", state.User.ID)
	assert.Equal(t, "a@example.com", state.User.Email)
	assert.Equal(t, token, storage.Token(), "header mode persists the token")

	store.Wait()
	assert.Equal(t, StatusAuthenticated, store.Status(), "failed enrichment must not affect status")
	assert.Equal(t, token, store.State().Token)
}

func TestSetToken_MalformedFallsBackToPlaceholder(t *testing.T) {
	store := newStore(config.UseHeaderAuth, &memStorage{}, &fakeFetcher{err: errors.New("offline")}, nil)
	defer store.Close()

	for _, token := range []string{"garbage", "a.b", "a.b.c"} {
		store.SetToken(token)
		state := store.State()
		assert.Equal(t, StatusAuthenticated, state.Status)
		require.NotNil(t, state.User)
		assert.Equal(t, PlaceholderUserID, state.User.ID)
	}
	store.Wait()
}

func TestHeaderMode_MountRestoresStoredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "user-1"})
	storage := &memStorage{token: token}
	fetcher := &fakeFetcher{info: &SessionInfo{
		Profile: Profile{ID: "user-1", Name: "Jane Doe"},
		Account: Account{Name: "Acme"},
	}}
	store := newStore(config.UseHeaderAuth, storage, fetcher, nil)
	defer store.Close()

	store.Mount(context.Background())
	assert.Equal(t, StatusAuthenticated, store.Status(), "stored token is trusted optimistically")

	store.Wait()
	user := store.State().User
	require.NotNil(t, user)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.Equal(t, "Acme", user.AccountName)

	store.Mount(context.Background())
	store.Wait()
	assert.Equal(t, int32(1), fetcher.calls.Load(), "remounting with the same token does not refetch")
}

func TestCookieMode_SetTokenIsNotPersisted(t *testing.T) {
	storage := &memStorage{}
	store := newStore(config.UseCookieAuth, storage, &fakeFetcher{err: errors.New("401")}, nil)
	defer store.Close()

	store.SetToken(signToken(t, jwt.MapClaims{"sub": "x"}))
	store.Wait()

	assert.Equal(t, "", storage.Token())
	assert.Equal(t, StatusAuthenticated, store.Status())
}

func TestCookieMode_SessionCheckEstablishesSession(t *testing.T) {
	fetcher := &fakeFetcher{
		info: &SessionInfo{
			Profile: Profile{ID: "42", Name: "Jane Doe"},
			Account: Account{Name: "Acme"},
		},
		release: make(chan struct{}),
	}
	store := newStore(config.UseCookieAuth, &memStorage{}, fetcher, nil)
	defer store.Close()

	var mu sync.Mutex
	var seen []Status
	store.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	assert.Equal(t, StatusLoading, store.Status(), "cookie mode starts loading until checked")

	store.Mount(context.Background())
	assert.Equal(t, StatusLoading, store.Status())

	close(fetcher.release)
	store.Wait()

	state := store.State()
	assert.Equal(t, StatusAuthenticated, state.Status)
	assert.True(t, state.CookieSessionValid)
	assert.False(t, state.CheckingCookieSession)
	assert.Equal(t, "", state.Token)
	require.NotNil(t, state.User)
	assert.Equal(t, "42", state.User.ID)
	assert.Equal(t, "Jane Doe", state.User.DisplayName)
	assert.Equal(t, "Acme", state.User.AccountName)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, StatusLoading, seen[0])
	assert.Equal(t, StatusAuthenticated, seen[len(seen)-1])
}

func TestCookieMode_SessionCheckRunsOnce(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("401"), release: make(chan struct{})}
	store := newStore(config.UseCookieAuth, &memStorage{}, fetcher, nil)
	defer store.Close()

	store.Mount(context.Background())
	store.Mount(context.Background())
	close(fetcher.release)
	store.Wait()
	store.Mount(context.Background())
	store.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestCookieMode_SessionCheckFailureLeavesUnauthenticated(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("401 Unauthorized")}
	store := newStore(config.UseCookieAuth, &memStorage{}, fetcher, nil)
	defer store.Close()

	assert.NotPanics(t, func() {
		store.Mount(context.Background())
		store.Wait()
	})

	state := store.State()
	assert.Equal(t, StatusUnauthenticated, state.Status)
	assert.False(t, state.CheckingCookieSession)
	assert.Nil(t, state.User)
}

func TestSetSessionFromSessionInfo(t *testing.T) {
	store := newStore(config.UseCookieAuth, &memStorage{}, nil, nil)
	defer store.Close()

	store.SetSessionFromSessionInfo(&SessionInfo{
		Profile: Profile{ID: "7", Email: "jd@example.com", Name: "Jane"},
		Account: Account{Name: "Acme", Role: "User"},
	})

	state := store.State()
	assert.Equal(t, StatusAuthenticated, state.Status)
	assert.True(t, state.CookieSessionValid)
	assert.Equal(t, &User{ID: "7", Email: "jd@example.com", DisplayName: "Jane", AccountName: "Acme", Role: "User"}, state.User)
}

func TestSetUserInfo_NonDestructive(t *testing.T) {
	store := newStore(config.UseHeaderAuth, &memStorage{}, &fakeFetcher{err: errors.New("offline")}, nil)
	defer store.Close()

	store.SetUserInfo("Nobody", "Nowhere")
	assert.Nil(t, store.State().User, "no user yet means no-op")

	store.SetToken(signToken(t, jwt.MapClaims{"sub": "u"}))
	store.Wait()
	store.SetUserInfo("Old Name", "")
	store.SetUserInfo("", "NewAccount")
	store.SetUserInfo("   ", "   ")

	user := store.State().User
	require.NotNil(t, user)
	assert.Equal(t, "Old Name", user.DisplayName)
	assert.Equal(t, "NewAccount", user.AccountName)
}

func TestLogout_Idempotent(t *testing.T) {
	storage := &memStorage{}
	store := newStore(config.UseHeaderAuth, storage, &fakeFetcher{err: errors.New("offline")}, nil)
	defer store.Close()

	store.SetToken(signToken(t, jwt.MapClaims{"sub": "u"}))
	store.Wait()

	store.Logout()
	once := store.State()
	store.Logout()
	twice := store.State()

	assert.Equal(t, once, twice)
	assert.Equal(t, StatusUnauthenticated, twice.Status)
	assert.Equal(t, "", twice.Token)
	assert.Nil(t, twice.User)
	assert.False(t, twice.CookieSessionValid)
	assert.Equal(t, "", storage.Token())
}

func TestUnauthorizedSignalLogsOut(t *testing.T) {
	signal := authevent.New()
	store := newStore(config.UseHeaderAuth, &memStorage{}, &fakeFetcher{err: errors.New("offline")}, signal)

	store.SetToken(signToken(t, jwt.MapClaims{"sub": "u"}))
	store.Wait()
	require.Equal(t, StatusAuthenticated, store.Status())
	assert.Equal(t, 1, signal.Len())

	signal.Emit()
	assert.Equal(t, StatusUnauthenticated, store.Status())
	signal.Emit()
	assert.Equal(t, StatusUnauthenticated, store.Status())

	store.Close()
	store.Close()
	assert.Equal(t, 0, signal.Len(), "teardown removes the subscription")
}

func TestClose_DiscardsLateEnrichment(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u"})
	fetcher := &fakeFetcher{
		info:    &SessionInfo{Profile: Profile{Name: "Late Name"}},
		release: make(chan struct{}),
	}
	store := newStore(config.UseHeaderAuth, &memStorage{token: token}, fetcher, nil)

	store.Mount(context.Background())
	store.Close()
	close(fetcher.release)
	store.Wait()

	user := store.State().User
	require.NotNil(t, user)
	assert.Equal(t, "", user.DisplayName)
}

func TestLogout_DiscardsPendingCookieCheck(t *testing.T) {
	fetcher := &fakeFetcher{
		info:    &SessionInfo{Profile: Profile{ID: "42", Name: "Jane"}},
		release: make(chan struct{}),
	}
	store := newStore(config.UseCookieAuth, &memStorage{}, fetcher, nil)
	defer store.Close()

	store.Mount(context.Background())
	require.Equal(t, StatusLoading, store.Status())

	store.Logout()
	close(fetcher.release)
	store.Wait()

	state := store.State()
	assert.Equal(t, StatusUnauthenticated, state.Status)
	assert.False(t, state.CookieSessionValid)
	assert.False(t, state.CheckingCookieSession)
	assert.Nil(t, state.User)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestLogout_DiscardsPendingEnrichment(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": "u"})
	fetcher := &fakeFetcher{
		info:    &SessionInfo{Profile: Profile{Name: "Late Name"}},
		release: make(chan struct{}),
	}
	store := newStore(config.UseHeaderAuth, &memStorage{token: token}, fetcher, nil)
	defer store.Close()

	store.Mount(context.Background())
	store.Logout()
	store.SetToken(signToken(t, jwt.MapClaims{"sub": "v"}))
	close(fetcher.release)
	store.Wait()

	user := store.State().User
	require.NotNil(t, user)
	assert.Equal(t, "v", user.ID)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	// only the enrichment for the current token may apply
	assert.Equal(t, "Late Name", user.DisplayName)
}
