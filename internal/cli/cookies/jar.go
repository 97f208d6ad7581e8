// Package cookies keeps the client's cookie session between CLI invocations.
package cookies

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Entry is the persisted form of one cookie
type Entry struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

// Jar is an http.CookieJar that remembers the HttpOnly flag of every cookie it
// receives and optionally persists them to a file.
type Jar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	entries map[string]Entry
	path    string
	now     func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

// New creates a jar persisted at path. An empty path keeps cookies in memory only.
func New(path string) (*Jar, error) {
	j := &Jar{
		entries: make(map[string]Entry),
		path:    path,
		now:     time.Now,
	}
	if err := j.reset(); err != nil {
		return nil, err
	}
	if path == "" {
		return j, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var entries []Entry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse cookie file: %w", err)
		}
	}

	now := j.now()
	for _, e := range entries {
		if !e.Expires.IsZero() && e.Expires.Before(now) {
			continue
		}
		u, err := url.Parse(e.URL)
		if err != nil {
			continue
		}
		j.jar.SetCookies(u, []*http.Cookie{e.cookie()})
		j.entries[entryKey(u, e.Name, e.Domain, e.Path)] = e
	}
	return j, nil
}

// SetCookies implements http.CookieJar
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	now := j.now()
	for _, c := range cookies {
		key := entryKey(u, c.Name, c.Domain, c.Path)
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!expires.IsZero() && expires.Before(now)) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = Entry{
			URL:      (&url.URL{Scheme: u.Scheme, Host: u.Host}).String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	_ = j.saveLocked()
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Visible returns the value of a cookie that client code could read for u, i.e.
// one that matches u and was not marked HttpOnly.
func (j *Jar) Visible(u *url.URL, name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var value string
	found := false
	for _, c := range j.jar.Cookies(u) {
		if c.Name == name {
			value, found = c.Value, true
			break
		}
	}
	if !found {
		return "", false
	}

	host := u.Hostname()
	for _, e := range j.entries {
		if e.Name == name && e.HttpOnly && e.Value == value && e.matchesHost(host) {
			return "", false
		}
	}
	return value, true
}

// Clear drops every cookie and truncates the persisted file
func (j *Jar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.reset(); err != nil {
		return err
	}
	j.entries = make(map[string]Entry)
	return j.saveLocked()
}

// Len reports the number of cookies being tracked
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func (j *Jar) reset() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j.jar = jar
	return nil
}

func (j *Jar) saveLocked() error {
	if j.path == "" {
		return nil
	}

	entries := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		entries = append(entries, e)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}

func (e Entry) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Path:     e.Path,
		Domain:   e.Domain,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HttpOnly: e.HttpOnly,
	}
}

func (e Entry) matchesHost(host string) bool {
	if e.Domain != "" {
		domain := strings.TrimPrefix(strings.ToLower(e.Domain), ".")
		host = strings.ToLower(host)
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), host)
}

func entryKey(u *url.URL, name, domain, path string) string {
	if domain == "" {
		domain = u.Hostname()
	}
	return strings.ToLower(strings.TrimPrefix(domain, ".")) + "|" + path + "|" + name
}
