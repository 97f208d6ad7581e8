package auth

import "sync"

// TokenStore defines the interface for token storage operations.
// Tokens are keyed by API server so one machine can hold sessions for several
// environments.
type TokenStore interface {
	SaveToken(server, token string) error
	LoadToken(server string) (string, error)
	DeleteToken(server string) error
}

// keyringTokenStore implements TokenStore using the OS keyring
type keyringTokenStore struct{}

var Default TokenStore = &keyringTokenStore{}

func (d *keyringTokenStore) SaveToken(server, token string) error {
	return SaveToken(server, token)
}

func (d *keyringTokenStore) LoadToken(server string) (string, error) {
	return LoadToken(server)
}

func (d *keyringTokenStore) DeleteToken(server string) error {
	return DeleteToken(server)
}

// MemoryStore keeps tokens for the lifetime of the process
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMemoryStore creates an empty in-memory token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (m *MemoryStore) SaveToken(server, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[server] = token
	return nil
}

func (m *MemoryStore) LoadToken(server string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[server]
	if !ok {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

func (m *MemoryStore) DeleteToken(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, server)
	return nil
}
