package sessionsdk_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/brewhouse/internal/identitytest"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testName     = "Ada Lovelace"
	testEmail    = "ada@example.com"
	testPassword = "Espresso#1"
)

// harness is one storefront process talking to an identity double. The
// storage outlives restart, the way a browser profile outlives a reload.
type harness struct {
	t       *testing.T
	srv     *identitytest.Server
	base    string
	storage *sessionsdk.MemoryStorage
	session *sessionsdk.Session
}

func newHarness(t *testing.T, cfg identitytest.Config) *harness {
	t.Helper()

	srv, base := identitytest.Start(t, cfg)
	h := &harness{
		t:       t,
		srv:     srv,
		base:    base,
		storage: sessionsdk.NewMemoryStorage(),
	}
	h.restart()

	return h
}

// restart throws away everything in memory and starts a fresh session on the
// same storage.
func (h *harness) restart() {
	h.t.Helper()

	jar, err := sessionsdk.NewPersistentJar(context.Background(), h.base, h.storage, slogx.Discard())
	require.NoError(h.t, err)

	client := sessionsdk.NewSDKClient(h.base, sessionsdk.WithCookieJar(jar))
	h.session = sessionsdk.NewSession(client, h.storage, sessionsdk.WithLogger(slogx.Discard()))
}

// loggedIn registers the test user and logs in with remember.
func (h *harness) loggedIn(remember bool) *sessionsdk.AuthResponse {
	h.t.Helper()

	h.srv.AddUser(testName, testEmail, testPassword)
	resp, err := h.session.Login(context.Background(), testEmail, testPassword, remember)
	require.NoError(h.t, err)
	return resp
}

func (h *harness) storedToken() string {
	h.t.Helper()
	v, err := h.storage.Get(context.Background(), sessionsdk.AccessTokenKey)
	require.NoError(h.t, err)
	return v
}

// recorder collects every state a session publishes.
type recorder struct {
	states []sessionsdk.State
}

func record(s *sessionsdk.Session) *recorder {
	r := &recorder{}
	s.Subscribe(func(st sessionsdk.State) { r.states = append(r.states, st) })
	return r
}
