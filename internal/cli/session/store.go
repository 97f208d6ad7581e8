// Package session owns the client-side authentication state: which token is in
// use, which user it resolved to, and the derived status shown to the user.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gresst/gresst/internal/cli/config"
)

// TokenStorage persists the bearer token between runs
type TokenStorage interface {
	Token() string
	SetToken(token string)
	Clear()
}

// SessionInfoFetcher calls the session-info endpoint
type SessionInfoFetcher interface {
	Me(ctx context.Context) (*SessionInfo, error)
}

// UnauthorizedSource delivers the transport's unauthorized signal
type UnauthorizedSource interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Options configures a Store
type Options struct {
	Mode         config.CredentialMode
	Storage      TokenStorage
	Fetcher      SessionInfoFetcher
	Unauthorized UnauthorizedSource
	Logger       zerolog.Logger
}

// Store is the single source of truth for "is the user logged in, and as whom".
type Store struct {
	mode    config.CredentialMode
	storage TokenStorage
	fetcher SessionInfoFetcher
	log     zerolog.Logger

	closeCtx    context.Context
	closeCancel context.CancelFunc
	unsubscribe func()
	tasks       sync.WaitGroup

	mu                    sync.Mutex
	token                 string
	user                  *User
	cookieSessionValid    bool
	checkingCookieSession bool
	checkStarted          bool
	closed                bool
	enrichGen             uint64
	checkGen              uint64
	enrichCancel          context.CancelFunc
	observers             map[int]func(State)
	nextObserver          int
}

// New creates a store and subscribes it to the unauthorized signal for its lifetime.
// In cookie mode without a stored token the store starts in loading so callers do
// not act on "unauthenticated" before Mount has checked the cookie session.
func New(opts Options) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		mode:        opts.Mode,
		storage:     opts.Storage,
		fetcher:     opts.Fetcher,
		log:         opts.Logger.With().Str("component", "session").Logger(),
		closeCtx:    ctx,
		closeCancel: cancel,
		observers:   make(map[int]func(State)),
	}
	if s.storage == nil {
		s.storage = noStorage{}
	}

	s.checkingCookieSession = s.mode == config.UseCookieAuth && s.storage.Token() == ""

	if opts.Unauthorized != nil {
		s.unsubscribe = opts.Unauthorized.Subscribe(s.Logout)
	}
	return s
}

// State returns a snapshot with the status derived from the current fields
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status is shorthand for State().Status
func (s *Store) Status() Status {
	return s.State().Status
}

// Subscribe registers fn to receive a snapshot after every state change
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Mount runs the startup protocol: restore a persisted token (header mode), check
// the cookie session once (cookie mode without a token), and enrich display names
// for a present token. Network work runs in the background; use Wait to settle.
func (s *Store) Mount(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.mode == config.UseHeaderAuth {
		if stored := s.storage.Token(); stored != "" && (stored != s.token || s.user == nil) {
			s.token = stored
			s.user = userOrPlaceholder(stored)
			s.log.Debug().Str("user_id", s.user.ID).Msg("Restored session from stored token")
		}
	}

	// at most one check per store, however often Mount runs
	if s.mode == config.UseCookieAuth && s.token == "" && !s.checkStarted {
		s.checkStarted = true
		s.checkingCookieSession = true
		gen := s.checkGen
		s.startTaskLocked(ctx, func(ctx context.Context) {
			s.checkCookieSession(ctx, gen)
		})
	}

	if s.token != "" && s.enrichCancel == nil {
		s.startEnrichmentLocked(ctx)
	}

	state := s.snapshotLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	notify(observers, state)
}

// Wait blocks until background session check and enrichment tasks have finished
func (s *Store) Wait() {
	s.tasks.Wait()
}

// SetToken accepts a freshly issued token. In header mode it is persisted.
// The user comes from the token claims, or a placeholder when they cannot be read.
func (s *Store) SetToken(token string) {
	if s.mode == config.UseHeaderAuth {
		s.storage.SetToken(token)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.user = userOrPlaceholder(token)
	if !s.checkStarted {
		// a token makes the cookie check unnecessary
		s.checkStarted = true
		s.checkingCookieSession = false
	}
	s.startEnrichmentLocked(s.closeCtx)

	state := s.snapshotLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	notify(observers, state)
}

// SetSessionFromSessionInfo marks a cookie session as confirmed by a successful
// session-info fetch.
func (s *Store) SetSessionFromSessionInfo(info *SessionInfo) {
	s.update(func() {
		s.cookieSessionValid = true
		s.user = UserFromSessionInfo(info)
		if s.user == nil {
			s.user = &User{ID: PlaceholderUserID}
		}
		// an explicitly established session supersedes the startup check
		s.checkStarted = true
		s.checkingCookieSession = false
	})
}

// SetUserInfo updates display fields with non-empty values only
func (s *Store) SetUserInfo(displayName, accountName string) {
	s.update(func() {
		if s.user == nil {
			return
		}
		applyNames(s.user, displayName, accountName)
	})
}

// Logout clears the persisted token and the in-memory session. It is idempotent.
func (s *Store) Logout() {
	s.storage.Clear()

	s.update(func() {
		s.token = ""
		s.user = nil
		s.cookieSessionValid = false
		s.checkGen++
		s.cancelEnrichmentLocked()
	})
}

// Close tears the store down: the unauthorized subscription is removed and results
// of outstanding fetches are discarded on arrival.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelEnrichmentLocked()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.closeCancel()
}

// checkCookieSession confirms a cookie session. A result arriving after a Logout
// that ran during the check is dropped.
func (s *Store) checkCookieSession(ctx context.Context, gen uint64) {
	info, err := s.fetcher.Me(ctx)

	s.update(func() {
		s.checkingCookieSession = false
		if s.closed || gen != s.checkGen {
			return
		}
		if err != nil {
			s.log.Debug().Err(err).Msg("No cookie session")
			return
		}
		s.cookieSessionValid = true
		s.user = UserFromSessionInfo(info)
		if s.user == nil {
			s.user = &User{ID: PlaceholderUserID}
		}
		s.log.Debug().Str("user_id", s.user.ID).Msg("Cookie session confirmed")
	})
}

func (s *Store) startEnrichmentLocked(parent context.Context) {
	s.cancelEnrichmentLocked()

	s.enrichGen++
	gen := s.enrichGen
	token := s.token

	ctx, cancel := context.WithCancel(parent)
	s.enrichCancel = cancel

	s.startTaskLocked(ctx, func(ctx context.Context) {
		defer cancel()
		info, err := s.fetcher.Me(ctx)
		if err != nil {
			s.log.Debug().Err(err).Msg("Session info enrichment failed")
			return
		}

		s.update(func() {
			if s.closed || gen != s.enrichGen || s.token != token || s.user == nil {
				return
			}
			applyNames(s.user, info.Profile.Name, info.Account.Name)
		})
	})
}

func (s *Store) cancelEnrichmentLocked() {
	if s.enrichCancel != nil {
		s.enrichCancel()
		s.enrichCancel = nil
	}
	s.enrichGen++
}

// startTaskLocked runs fn in the background with a context that is also cancelled
// when the store closes.
func (s *Store) startTaskLocked(ctx context.Context, fn func(ctx context.Context)) {
	if s.fetcher == nil {
		s.checkingCookieSession = false
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.closeCtx, cancel)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer stop()
		defer cancel()
		fn(taskCtx)
	}()
}

// update applies fn under the lock and notifies observers afterwards
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	state := s.snapshotLocked()
	observers := s.observersLocked()
	s.mu.Unlock()

	notify(observers, state)
}

func (s *Store) snapshotLocked() State {
	return State{
		Status:                DeriveStatus(s.token, s.user, s.cookieSessionValid, s.checkingCookieSession),
		Token:                 s.token,
		User:                  cloneUser(s.user),
		CookieSessionValid:    s.cookieSessionValid,
		CheckingCookieSession: s.checkingCookieSession,
	}
}

func (s *Store) observersLocked() []func(State) {
	if s.closed {
		return nil
	}
	fns := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(observers []func(State), state State) {
	for _, fn := range observers {
		fn(state)
	}
}

func userOrPlaceholder(token string) *User {
	if u := UserFromToken(token); u != nil {
		return u
	}
	return &User{ID: PlaceholderUserID}
}

func applyNames(u *User, displayName, accountName string) {
	if v := strings.TrimSpace(displayName); v != "" {
		u.DisplayName = v
	}
	if v := strings.TrimSpace(accountName); v != "" {
		u.AccountName = v
	}
}

type noStorage struct{}

func (noStorage) Token() string   { return "" }
func (noStorage) SetToken(string) {}
func (noStorage) Clear()          {}
