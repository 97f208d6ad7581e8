// Package app assembles the client from configuration: token storage, cookie
// jar, credential chain, transport, API client and session store.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gresst/gresst/internal/cli/auth"
	"github.com/gresst/gresst/internal/cli/authevent"
	"github.com/gresst/gresst/internal/cli/client"
	"github.com/gresst/gresst/internal/cli/config"
	"github.com/gresst/gresst/internal/cli/cookies"
	"github.com/gresst/gresst/internal/cli/credentials"
	"github.com/gresst/gresst/internal/cli/session"
	"github.com/gresst/gresst/internal/cli/transport"
	"github.com/gresst/gresst/internal/cli/userconfig"
)

// ErrNoBaseURL is returned when no API base URL is configured
var ErrNoBaseURL = errors.New("API base URL is not configured (set GRESST_API_BASE_URL or apiBaseUrl in gresst.json)")

// App holds every collaborator of one CLI invocation
type App struct {
	Config    *config.Config
	State     userconfig.Dir
	Logger    zerolog.Logger
	Storage   *auth.Storage
	Jar       *cookies.Jar
	Signal    *authevent.Broadcaster
	Transport *transport.Client
	API       *client.Client
	Session   *session.Store
	Registry  *prometheus.Registry

	closers []io.Closer
}

type options struct {
	tokenStore auth.TokenStore
	httpClient *http.Client
	stateDir   string
	logger     zerolog.Logger
	persist    bool
}

// Option customizes New
type Option func(*options)

// WithTokenStore overrides the configured token store
func WithTokenStore(store auth.TokenStore) Option {
	return func(o *options) { o.tokenStore = store }
}

// WithHTTPClient sets the HTTP client used by the transport
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithStateDir overrides the state directory
func WithStateDir(dir string) Option {
	return func(o *options) { o.stateDir = dir }
}

// WithLogger sets the logger handed to every component
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithoutPersistence keeps cookies in memory and disables the debug log file
func WithoutPersistence() Option {
	return func(o *options) { o.persist = false }
}

// New wires the client for cfg. Call Close when done.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: zerolog.Nop(), persist: true, stateDir: cfg.StateDir}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.APIBaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	state, err := userconfig.DefaultDir(o.stateDir)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		State:    state,
		Logger:   o.logger,
		Signal:   authevent.New(),
		Registry: prometheus.NewRegistry(),
	}

	store := o.tokenStore
	if store == nil {
		store, err = a.tokenStore()
		if err != nil {
			return nil, err
		}
	}
	a.Storage = auth.NewStorage(store, cfg.APIBaseURL, o.logger)

	jarPath := ""
	var debugLog *transport.DebugLog
	if o.persist {
		if err := state.Ensure(); err != nil {
			return nil, err
		}
		jarPath = state.CookiesPath()
		if cfg.DebugAPILog {
			log, closer, err := transport.OpenDebugLog(state.DebugLogPath())
			if err != nil {
				o.logger.Warn().Err(err).Msg("API debug log unavailable")
			} else {
				debugLog = log
				a.closers = append(a.closers, closer)
			}
		}
	}
	a.Jar, err = cookies.New(jarPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	// A stored token only exists in header mode; in cookie mode a leftover one
	// would shadow the session cookie.
	var chain credentials.Chain
	if cfg.Mode() == config.UseHeaderAuth {
		chain = append(chain, credentials.StoredToken(a.Storage))
	}
	chain = append(chain,
		credentials.DevToken(cfg.DevBearerToken, a.Storage),
		credentials.Cookie(a.Jar, base, cfg.AuthCookieName),
	)

	a.Transport, err = transport.New(transport.Options{
		BaseURL:      cfg.APIBaseURL,
		Mode:         cfg.Mode(),
		RefreshPath:  cfg.RefreshEndpoint,
		HTTPClient:   o.httpClient,
		Jar:          a.Jar,
		Credentials:  chain,
		Tokens:       a.Storage,
		Unauthorized: a.Signal,
		Logger:       o.logger,
		Metrics:      transport.NewMetrics(a.Registry),
		DebugLog:     debugLog,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Transport.SetErrorHandler(func(err *transport.HTTPError) {
		o.logger.Debug().Int("status", err.Status).Str("code", err.Code).Msg("API request failed")
	})

	a.API = client.New(a.Transport)
	a.Session = session.New(session.Options{
		Mode:         cfg.Mode(),
		Storage:      a.Storage,
		Fetcher:      a.API,
		Unauthorized: a.Signal,
		Logger:       o.logger,
	})
	return a, nil
}

func (a *App) tokenStore() (auth.TokenStore, error) {
	switch a.Config.TokenStore {
	case "keyring":
		return auth.Default, nil
	case "file":
		return auth.NewFileStore(a.State.TokensPath()), nil
	case "memory":
		return auth.NewMemoryStore(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		a.closers = append(a.closers, rdb)
		return auth.NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("unknown token store %q (use keyring, file, memory or redis)", a.Config.TokenStore)
	}
}

// Start mounts the session store and waits for its startup work to settle
func (a *App) Start(ctx context.Context) session.State {
	a.Session.Mount(ctx)
	a.Session.Wait()
	return a.Session.State()
}

// Logout asks the server to revoke its session cookies, forgets every cookie
// and ends the session locally. Server failures are logged; the local logout
// always happens.
func (a *App) Logout(ctx context.Context) {
	if a.Jar.Len() > 0 {
		if err := a.API.Logout(ctx); err != nil {
			a.Logger.Debug().Err(err).Msg("Server logout failed")
		}
	}
	if err := a.Jar.Clear(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to clear cookies")
	}
	a.Session.Logout()
}

// Close stops the session store and releases files and connections
func (a *App) Close() {
	if a.Session != nil {
		a.Session.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}
