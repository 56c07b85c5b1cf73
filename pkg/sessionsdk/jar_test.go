package sessionsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/brewhouse/internal/identitytest"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestPersistentJar(t *testing.T) {
	ctx := context.Background()
	const base = "https://shop.example.com"

	t.Run("rejects a base url without host", func(t *testing.T) {
		_, err := sessionsdk.NewPersistentJar(ctx, "/relative", sessionsdk.NewMemoryStorage(), nil)
		require.Error(t, err)
	})

	t.Run("mirrors renewal cookies across instances", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)

		jar.SetCookies(mustURL(t, base+"/api/auth/login"), []*http.Cookie{
			{Name: identitytest.TicketCookie, Value: "ticket-1", Path: "/api/auth", HttpOnly: true},
		})

		raw, err := storage.Get(ctx, sessionsdk.CookiesKey)
		require.NoError(t, err)
		require.Contains(t, raw, "ticket-1")

		again, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)

		cookies := again.Cookies(mustURL(t, base+"/api/auth/refresh"))
		require.Len(t, cookies, 1)
		require.Equal(t, identitytest.TicketCookie, cookies[0].Name)
		require.Equal(t, "ticket-1", cookies[0].Value)
	})

	t.Run("expired cookie removes the stored entry", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)

		u := mustURL(t, base+"/api/auth/login")
		jar.SetCookies(u, []*http.Cookie{{Name: identitytest.TicketCookie, Value: "ticket-1", Path: "/api/auth"}})
		jar.SetCookies(u, []*http.Cookie{{Name: identitytest.TicketCookie, Path: "/api/auth", MaxAge: -1}})

		raw, err := storage.Get(ctx, sessionsdk.CookiesKey)
		require.NoError(t, err)
		require.Empty(t, raw)
	})

	t.Run("cookies outside the auth path are not kept", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)

		jar.SetCookies(mustURL(t, base+"/shop/cart"), []*http.Cookie{{Name: "cart", Value: "3", Path: "/shop"}})

		raw, err := storage.Get(ctx, sessionsdk.CookiesKey)
		require.NoError(t, err)
		require.Empty(t, raw)
	})

	t.Run("ticket attributes survive a restart", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)

		before := time.Now()
		jar.SetCookies(mustURL(t, base+"/api/auth/login"), []*http.Cookie{{
			Name:     identitytest.TicketCookie,
			Value:    "ticket-1",
			Path:     "/",
			MaxAge:   3600,
			Secure:   true,
			HttpOnly: true,
		}})

		raw, err := storage.Get(ctx, sessionsdk.CookiesKey)
		require.NoError(t, err)
		var stored []struct {
			Path     string    `json:"path"`
			Expires  time.Time `json:"expires"`
			Secure   bool      `json:"secure"`
			HttpOnly bool      `json:"httpOnly"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &stored))
		require.Len(t, stored, 1)
		require.Equal(t, "/", stored[0].Path)
		require.True(t, stored[0].Secure)
		require.True(t, stored[0].HttpOnly)
		require.WithinRange(t, stored[0].Expires, before.Add(time.Hour-time.Second), time.Now().Add(time.Hour+time.Second))

		again, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)
		require.Len(t, again.Cookies(mustURL(t, base+"/api/auth/refresh")), 1)
		require.Empty(t, again.Cookies(mustURL(t, "http://shop.example.com/api/auth/refresh")), "secure ticket stays https-only")
		require.Len(t, again.Cookies(mustURL(t, base+"/shop")), 1, "path is kept")
	})

	t.Run("expired entries are dropped on restore", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		entries := []map[string]any{
			{"name": "stale", "value": "old", "path": "/api/auth", "expires": time.Now().Add(-time.Hour)},
			{"name": identitytest.TicketCookie, "value": "ticket-2", "path": "/api/auth", "expires": time.Now().Add(time.Hour)},
		}
		b, err := json.Marshal(entries)
		require.NoError(t, err)
		require.NoError(t, storage.Set(ctx, sessionsdk.CookiesKey, string(b)))

		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)

		cookies := jar.Cookies(mustURL(t, base+"/api/auth/refresh"))
		require.Len(t, cookies, 1)
		require.Equal(t, "ticket-2", cookies[0].Value)
	})

	t.Run("entries without attributes restore as session cookies", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		require.NoError(t, storage.Set(ctx, sessionsdk.CookiesKey, `[{"name":"refreshToken","value":"ticket-3"}]`))

		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)
		require.Len(t, jar.Cookies(mustURL(t, base+"/api/auth/refresh")), 1)
	})

	t.Run("corrupt entry is ignored", func(t *testing.T) {
		storage := sessionsdk.NewMemoryStorage()
		require.NoError(t, storage.Set(ctx, sessionsdk.CookiesKey, "{not json"))

		jar, err := sessionsdk.NewPersistentJar(ctx, base, storage, slogx.Discard())
		require.NoError(t, err)
		require.Empty(t, jar.Cookies(mustURL(t, base+"/api/auth/refresh")))
	})
}

func TestPersistentJar_ResumesAfterRestart(t *testing.T) {
	h := newHarness(t, identitytest.Config{})
	h.loggedIn(false)

	// Nothing but the jar's mirror survives into the next process.
	h.restart()
	st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
	require.NoError(t, err)
	require.True(t, st.Authenticated())

	// The rotated ticket was mirrored too, so a second restart works as well.
	h.restart()
	st, err = h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
	require.NoError(t, err)
	require.True(t, st.Authenticated())
	require.Equal(t, 2, h.srv.Calls(identitytest.RouteRefresh))
}
