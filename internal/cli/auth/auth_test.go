package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	_, err := Default.LoadToken("https://api.example.com")
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, Default.SaveToken("https://api.example.com", "tok-1"))
	token, err := Default.LoadToken("https://api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	require.NoError(t, Default.DeleteToken("https://api.example.com"))
	require.NoError(t, Default.DeleteToken("https://api.example.com"), "deleting twice is not an error")

	_, err = Default.LoadToken("https://api.example.com")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewFileStore(path)

	_, err := store.LoadToken("a")
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.SaveToken("a", "tok-a"))
	require.NoError(t, store.SaveToken("b", "tok-b"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened := NewFileStore(path)
	token, err := reopened.LoadToken("b")
	require.NoError(t, err)
	assert.Equal(t, "tok-b", token)

	require.NoError(t, reopened.DeleteToken("a"))
	_, err = reopened.LoadToken("a")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	require.NoError(t, reopened.DeleteToken("missing"))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).LoadToken("a")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotAuthenticated))
}

type failingStore struct{}

func (failingStore) SaveToken(string, string) error   { return errors.New("disk full") }
func (failingStore) LoadToken(string) (string, error) { return "", errors.New("locked") }
func (failingStore) DeleteToken(string) error         { return errors.New("locked") }

func TestStorageAbsorbsFailures(t *testing.T) {
	s := NewStorage(failingStore{}, "srv", zerolog.Nop())

	assert.NotPanics(t, func() { s.SetToken("tok") })
	assert.Equal(t, "", s.Token())
	assert.NotPanics(t, s.Clear)
}

func TestStorageLogoutRequested(t *testing.T) {
	s := NewStorage(NewMemoryStore(), "srv", zerolog.Nop())
	assert.False(t, s.LogoutRequested())

	s.SetToken("tok")
	assert.Equal(t, "tok", s.Token())

	s.Clear()
	assert.Equal(t, "", s.Token())
	assert.True(t, s.LogoutRequested())

	s.SetToken("tok-2")
	assert.False(t, s.LogoutRequested())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	prefix := "gresst-test:" + t.Name() + ":"
	store := NewRedisStoreWithPrefix(client, prefix)
	t.Cleanup(func() { _ = store.DeleteToken("srv") })

	_, err := store.LoadToken("srv")
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, store.SaveToken("srv", "tok"))
	token, err := store.LoadToken("srv")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	require.NoError(t, store.DeleteToken("srv"))
	_, err = store.LoadToken("srv")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
