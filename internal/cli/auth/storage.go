package auth

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Storage binds a TokenStore to one API server and absorbs storage failures:
// an unreadable store behaves like an empty one and a failed write is logged.
type Storage struct {
	store  TokenStore
	server string
	log    zerolog.Logger

	mu              sync.Mutex
	logoutRequested bool
}

// NewStorage creates token storage for server backed by store
func NewStorage(store TokenStore, server string, log zerolog.Logger) *Storage {
	return &Storage{
		store:  store,
		server: server,
		log:    log.With().Str("component", "token-storage").Logger(),
	}
}

// Token returns the persisted token, or "" when none is available
func (s *Storage) Token() string {
	token, err := s.store.LoadToken(s.server)
	if err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			s.log.Debug().Err(err).Msg("Token storage unavailable")
		}
		return ""
	}
	return token
}

// SetToken persists token and re-enables fallback credentials after a logout
func (s *Storage) SetToken(token string) {
	if err := s.store.SaveToken(s.server, token); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist token")
	}
	s.mu.Lock()
	s.logoutRequested = false
	s.mu.Unlock()
}

// Clear removes the persisted token and records that the user logged out
func (s *Storage) Clear() {
	if err := s.store.DeleteToken(s.server); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear token")
	}
	s.mu.Lock()
	s.logoutRequested = true
	s.mu.Unlock()
}

// LogoutRequested reports whether Clear ran since the last SetToken
func (s *Storage) LogoutRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutRequested
}
