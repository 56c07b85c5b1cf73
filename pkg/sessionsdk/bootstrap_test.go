package sessionsdk_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aussiebroadwan/brewhouse/internal/identitytest"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestBootstrap_RememberedCredential(t *testing.T) {
	for _, bare := range []bool{false, true} {
		t.Run(map[bool]string{false: "envelope", true: "bare user"}[bare], func(t *testing.T) {
			h := newHarness(t, identitytest.Config{BareUser: bare})
			resp := h.loggedIn(true)
			h.restart()
			h.srv.ResetCalls()

			st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
			require.NoError(t, err)

			require.True(t, st.Authenticated())
			require.False(t, st.Loading)
			require.Equal(t, resp.User.ID, st.User.ID)
			require.Equal(t, resp.AccessToken, st.AccessToken)
			require.Equal(t, resp.AccessToken, h.storedToken())

			require.Equal(t, 1, h.srv.Calls(identitytest.RouteMe))
			require.Zero(t, h.srv.Calls(identitytest.RouteRefresh), "a valid stored credential wins over renewal")
		})
	}
}

func TestBootstrap_RejectedCredentialFallsBackToRenewal(t *testing.T) {
	h := newHarness(t, identitytest.Config{})
	resp := h.loggedIn(true)
	h.srv.ExpireAccessTokens()
	h.restart()
	h.srv.ResetCalls()

	st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
	require.NoError(t, err)

	require.True(t, st.Authenticated())
	require.NotEqual(t, resp.AccessToken, st.AccessToken)
	require.Empty(t, h.storedToken(), "the rejected credential is removed and the renewed one is not remembered")

	require.Equal(t, 2, h.srv.Calls(identitytest.RouteMe))
	require.Equal(t, 1, h.srv.Calls(identitytest.RouteRefresh))
}

func TestBootstrap_RenewalTicketOnly(t *testing.T) {
	h := newHarness(t, identitytest.Config{})
	h.loggedIn(false)
	h.restart()
	h.srv.ResetCalls()

	st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
	require.NoError(t, err)

	require.True(t, st.Authenticated())
	require.Equal(t, testEmail, st.User.Email)
	require.Empty(t, h.storedToken())
	require.Equal(t, 1, h.srv.Calls(identitytest.RouteRefresh))
	require.Equal(t, 1, h.srv.Calls(identitytest.RouteMe))
}

func TestBootstrap_Anonymous(t *testing.T) {
	t.Run("first visit", func(t *testing.T) {
		h := newHarness(t, identitytest.Config{})

		st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
		require.NoError(t, err)

		require.True(t, st.Anonymous())
		require.False(t, st.Loading)
		require.Equal(t, 1, h.srv.Calls(identitytest.RouteRefresh))
		require.Zero(t, h.srv.Calls(identitytest.RouteMe))
	})

	t.Run("stored credential and ticket both dead", func(t *testing.T) {
		h := newHarness(t, identitytest.Config{})
		h.loggedIn(true)
		h.srv.ExpireAccessTokens()
		h.srv.RevokeSessions()
		h.restart()

		st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
		require.NoError(t, err)

		require.True(t, st.Anonymous())
		require.Empty(t, h.storedToken())
	})

	t.Run("renewed credential rejected by lookup", func(t *testing.T) {
		h := newHarness(t, identitytest.Config{})
		h.loggedIn(false)
		h.restart()
		h.srv.InjectFault(identitytest.RouteMe, http.StatusInternalServerError, 1)

		st, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
		require.NoError(t, err)

		require.True(t, st.Anonymous())
		require.Empty(t, st.AccessToken)
	})

	t.Run("identity service down", func(t *testing.T) {
		s := sessionsdk.NewSession(sessionsdk.NewSDKClient("http://127.0.0.1:1"), nil,
			sessionsdk.WithLogger(slogx.Discard()))

		st, err := s.Bootstrap(context.Background(), sessionsdk.NewLiveness())
		require.NoError(t, err)
		require.True(t, st.Anonymous())
	})
}

func TestBootstrap_LoadingUntilSettled(t *testing.T) {
	h := newHarness(t, identitytest.Config{})
	h.loggedIn(false)
	h.restart()

	before := h.session.State()
	require.True(t, before.Loading)
	require.False(t, before.Anonymous(), "never anonymous while loading")

	rec := record(h.session)
	_, err := h.session.Bootstrap(context.Background(), sessionsdk.NewLiveness())
	require.NoError(t, err)

	require.Len(t, rec.states, 1, "bootstrap publishes only its terminal state")
	require.False(t, rec.states[0].Loading)
	require.True(t, rec.states[0].Authenticated())
}

// killingTransport kills live once a response for path has been received.
type killingTransport struct {
	live *sessionsdk.Liveness
	path string
}

func (k killingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(r)
	if strings.HasSuffix(r.URL.Path, k.path) {
		k.live.Kill()
	}
	return resp, err
}

func TestBootstrap_TearDown(t *testing.T) {
	t.Run("killed before the first response", func(t *testing.T) {
		h := newHarness(t, identitytest.Config{})
		resp := h.loggedIn(true)
		h.restart()
		rec := record(h.session)

		live := sessionsdk.NewLiveness()
		live.Kill()
		live.Kill()

		st, err := h.session.Bootstrap(context.Background(), live)
		require.ErrorIs(t, err, sessionsdk.ErrTornDown)
		require.True(t, st.Loading)
		require.True(t, h.session.State().Loading)
		require.Empty(t, rec.states)
		require.Equal(t, resp.AccessToken, h.storedToken(), "nothing is forgotten after teardown")
	})

	t.Run("killed while renewing", func(t *testing.T) {
		h := newHarness(t, identitytest.Config{})
		h.loggedIn(false)

		live := sessionsdk.NewLiveness()
		jar, err := sessionsdk.NewPersistentJar(context.Background(), h.base, h.storage, slogx.Discard())
		require.NoError(t, err)
		client := sessionsdk.NewSDKClient(h.base,
			sessionsdk.WithCookieJar(jar),
			sessionsdk.WithTransport(killingTransport{live: live, path: "/api/auth/refresh"}),
		)
		s := sessionsdk.NewSession(client, h.storage, sessionsdk.WithLogger(slogx.Discard()))
		h.srv.ResetCalls()

		st, err := s.Bootstrap(context.Background(), live)
		require.ErrorIs(t, err, sessionsdk.ErrTornDown)
		require.True(t, st.Loading)
		require.False(t, st.Authenticated())
		require.Zero(t, h.srv.Calls(identitytest.RouteMe))
	})

	t.Run("context cancelled", func(t *testing.T) {
		h := newHarness(t, identitytest.Config{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		st, err := h.session.Bootstrap(ctx, sessionsdk.NewLiveness())
		require.ErrorIs(t, err, sessionsdk.ErrTornDown)
		require.True(t, errors.Is(err, context.Canceled))
		require.True(t, st.Loading)
	})
}
