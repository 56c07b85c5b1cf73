package session_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/brewhouse/internal/identitytest"
	storeredis "github.com/aussiebroadwan/brewhouse/internal/storage/redis"
	"github.com/aussiebroadwan/brewhouse/internal/storage/sqlite"
	"github.com/aussiebroadwan/brewhouse/pkg/cryptox"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helpers for the session end-to-end tests. Each
 * "process" is a fresh client, jar and session over a durable profile that
 * outlives it, talking to an in-process identity service.
 */

const (
	shopperName     = "Flat White"
	shopperEmail    = "flat.white@example.com"
	shopperPassword = "Espresso#1"
	masterKey       = "e2e-master-key"
)

// profile opens durable storage for one process.
type profile func(t *testing.T) sessionsdk.Storage

// sqliteProfile returns a profile backed by one encrypted SQLite file.
func sqliteProfile(t *testing.T) profile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.db")

	return func(t *testing.T) sessionsdk.Storage {
		t.Helper()
		store, err := sqlite.Open(sqlite.DSN(path), sqlite.WithSealer(newSealer(t)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}
}

// redisProfile returns a profile backed by a throwaway Redis container.
func redisProfile(t *testing.T) profile {
	t.Helper()
	addr := setupRedisContainer(t)
	prefix := fmt.Sprintf("e2e:%d:", time.Now().UnixNano())

	return func(t *testing.T) sessionsdk.Storage {
		t.Helper()
		store, err := storeredis.Dial(t.Context(), addr, "", prefix, storeredis.WithSealer(newSealer(t)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}
}

func newSealer(t *testing.T) *cryptox.Sealer {
	t.Helper()
	sealer, err := cryptox.NewSealer([]byte(masterKey))
	require.NoError(t, err)
	return sealer
}

// setupRedisContainer starts Redis and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

// startProcess builds what one storefront process would build at startup.
func startProcess(t *testing.T, baseURL string, open profile) (*sessionsdk.Session, sessionsdk.Storage) {
	t.Helper()

	storage := open(t)
	jar, err := sessionsdk.NewPersistentJar(t.Context(), baseURL, storage, slogx.Discard())
	require.NoError(t, err)

	client := sessionsdk.NewSDKClient(baseURL, sessionsdk.WithCookieJar(jar))
	return sessionsdk.NewSession(client, storage, sessionsdk.WithLogger(slogx.Discard())), storage
}

// bootstrap settles a fresh session and fails the test on teardown.
func bootstrap(t *testing.T, s *sessionsdk.Session) sessionsdk.State {
	t.Helper()
	live := sessionsdk.NewLiveness()
	t.Cleanup(live.Kill)

	st, err := s.Bootstrap(t.Context(), live)
	require.NoError(t, err)
	require.False(t, st.Loading)
	return st
}

func storedCredential(t *testing.T, storage sessionsdk.Storage) string {
	t.Helper()
	v, err := storage.Get(t.Context(), sessionsdk.AccessTokenKey)
	require.NoError(t, err)
	return v
}

func startIdentity(t *testing.T) (*identitytest.Server, string) {
	t.Helper()
	srv, base := identitytest.Start(t, identitytest.Config{})
	srv.AddUser(shopperName, shopperEmail, shopperPassword)
	return srv, base
}
