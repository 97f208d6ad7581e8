// Package credentials decides which bearer token, if any, accompanies a request.
package credentials

import (
	"net/url"
)

// Resolver yields a bearer token when its source has one
type Resolver interface {
	Resolve() (token string, ok bool)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func() (string, bool)

func (f ResolverFunc) Resolve() (string, bool) { return f() }

// Chain evaluates resolvers in order; the first one that yields a token wins
type Chain []Resolver

func (c Chain) Resolve() (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if token, ok := r.Resolve(); ok && token != "" {
			return token, true
		}
	}
	return "", false
}

// TokenSource is the persisted token storage
type TokenSource interface {
	Token() string
}

// LogoutAware reports whether the user explicitly logged out since the last login
type LogoutAware interface {
	LogoutRequested() bool
}

// StoredToken resolves the locally persisted token
func StoredToken(src TokenSource) Resolver {
	return ResolverFunc(func() (string, bool) {
		token := src.Token()
		return token, token != ""
	})
}

// DevToken resolves a statically configured development token. It stays silent
// once the user has logged out so logout is observable during development.
func DevToken(token string, logout LogoutAware) Resolver {
	return ResolverFunc(func() (string, bool) {
		if token == "" {
			return "", false
		}
		if logout != nil && logout.LogoutRequested() {
			return "", false
		}
		return token, true
	})
}

// CookieReader exposes cookies readable by client code
type CookieReader interface {
	Visible(u *url.URL, name string) (string, bool)
}

// Cookie resolves a non-HttpOnly cookie by name for the API base URL
func Cookie(jar CookieReader, base *url.URL, name string) Resolver {
	return ResolverFunc(func() (string, bool) {
		if jar == nil || base == nil || name == "" {
			return "", false
		}
		return jar.Visible(base, name)
	})
}
