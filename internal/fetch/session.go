// Package fetch talks HTTP to the control panel: it owns the session
// (client + cookie jar) and fetches module HTML fragments.
package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultSessionCookie is the cookie the panel uses for its access token.
const DefaultSessionCookie = "users_access_token"

// Session holds the base URL and the credentials shared by every request
// the client makes (fragments, JSON API, chat).
type Session struct {
	base   *url.URL
	client *http.Client
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	client      *http.Client
	timeout     time.Duration
	cookieName  string
	cookieValue string
}

// WithHTTPClient replaces the default http.Client. Its Jar is replaced
// when nil so credentials still travel with each request.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(cfg *sessionConfig) { cfg.client = c }
}

// WithTimeout sets the client timeout. Zero keeps the platform default.
func WithTimeout(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) { cfg.timeout = d }
}

// WithSessionCookie seeds the cookie jar with the panel access token.
func WithSessionCookie(name, value string) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.cookieName = name
		cfg.cookieValue = value
	}
}

// NewSession creates a Session for the panel at baseURL.
func NewSession(baseURL string, opts ...SessionOption) (*Session, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("fetch: parsing base URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("fetch: base URL %q must be http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("fetch: base URL %q has no host", baseURL)
	}

	cfg := sessionConfig{cookieName: DefaultSessionCookie}
	for _, o := range opts {
		o(&cfg)
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{}
	}
	if cfg.timeout > 0 {
		client.Timeout = cfg.timeout
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: creating cookie jar: %w", err)
		}
		client.Jar = jar
	}
	if cfg.cookieValue != "" {
		if cfg.cookieName == "" {
			return nil, errors.New("fetch: session cookie name cannot be empty")
		}
		client.Jar.SetCookies(base, []*http.Cookie{{
			Name:  cfg.cookieName,
			Value: cfg.cookieValue,
			Path:  "/",
		}})
	}

	return &Session{base: base, client: client}, nil
}

// Client returns the credentialed http.Client.
func (s *Session) Client() *http.Client {
	return s.client
}

// BaseURL returns a copy of the panel base URL.
func (s *Session) BaseURL() *url.URL {
	u := *s.base
	return &u
}

// Resolve turns a module or API path into an absolute URL on the panel.
// Absolute URLs are returned unchanged.
func (s *Session) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("fetch: parsing URL %q: %w", ref, err)
	}
	return s.base.ResolveReference(u).String(), nil
}

// Cookies returns the cookies the jar would send to the panel, for
// transports that do not go through the http.Client (WebSocket dial).
func (s *Session) Cookies() []*http.Cookie {
	return s.client.Jar.Cookies(s.base)
}
