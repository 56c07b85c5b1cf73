package sessionsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// storedCookie is the durable form of a cookie mirrored by PersistentJar.
// A zero Expires is a session cookie.
type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

// cookieAttrs is what the jar itself does not report back from Cookies.
type cookieAttrs struct {
	path     string
	expires  time.Time
	secure   bool
	httpOnly bool
}

// PersistentJar is an http.CookieJar that mirrors the identity service's
// renewal cookies into Storage, the way a browser keeps an HTTP-only cookie
// across restarts. Only cookies visible to the renewal endpoint are kept;
// the stored values are never read by the SDK, only replayed.
type PersistentJar struct {
	jar     *cookiejar.Jar
	storage Storage
	scope   *url.URL
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	attrs map[string]cookieAttrs // by cookie name
}

// NewPersistentJar creates a jar for the identity service at baseURL and
// restores any cookies previously mirrored into storage.
func NewPersistentJar(ctx context.Context, baseURL string, storage Storage, logger *slog.Logger) (*PersistentJar, error) {
	scope, err := url.Parse(strings.TrimSuffix(baseURL, "/") + pathRefresh)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if scope.Scheme == "" || scope.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j := &PersistentJar{
		jar:     jar,
		storage: storage,
		scope:   scope,
		logger:  logger,
		now:     time.Now,
		attrs:   make(map[string]cookieAttrs),
	}
	j.restore(ctx)

	return j, nil
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// SetCookies implements http.CookieJar. The renewal-scoped cookies are
// written through to storage after every change.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	now := j.now()
	for _, c := range cookies {
		expired := c.MaxAge < 0 || (c.MaxAge == 0 && !c.Expires.IsZero() && !c.Expires.After(now))
		if expired {
			delete(j.attrs, c.Name)
			continue
		}
		a := cookieAttrs{path: c.Path, expires: c.Expires, secure: c.Secure, httpOnly: c.HttpOnly}
		if c.MaxAge > 0 {
			a.expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.attrs[c.Name] = a
	}

	if err := j.persist(context.Background()); err != nil {
		j.logger.Warn("failed to persist cookies", "error", err)
	}
}

// restore loads mirrored cookies with their attributes, dropping any that
// expired while the process was not running. Unreadable entries only cost
// the user a fresh login, so they are logged and skipped.
func (j *PersistentJar) restore(ctx context.Context) {
	raw, err := j.storage.Get(ctx, CookiesKey)
	if err != nil {
		j.logger.Warn("failed to read stored cookies", "error", err)
		return
	}
	if raw == "" {
		return
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		j.logger.Warn("discarding unreadable stored cookies", "error", err)
		return
	}

	now := j.now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			j.logger.Debug("dropping expired stored cookie", "name", c.Name)
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
		j.attrs[c.Name] = cookieAttrs{path: c.Path, expires: c.Expires, secure: c.Secure, httpOnly: c.HttpOnly}
	}
	j.jar.SetCookies(j.scope, cookies)
}

func (j *PersistentJar) persist(ctx context.Context) error {
	cookies := j.jar.Cookies(j.scope)
	if len(cookies) == 0 {
		return j.storage.Delete(ctx, CookiesKey)
	}

	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		a := j.attrs[c.Name]
		stored = append(stored, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     a.path,
			Expires:  a.expires,
			Secure:   a.secure,
			HttpOnly: a.httpOnly,
		})
	}

	b, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	return j.storage.Set(ctx, CookiesKey, string(b))
}
