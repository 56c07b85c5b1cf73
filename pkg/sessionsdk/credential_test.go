package sessionsdk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// brokenStorage fails every write while still answering reads.
type brokenStorage struct {
	*MemoryStorage
}

var errDiskFull = errors.New("disk full")

func (brokenStorage) Set(context.Context, string, string) error { return errDiskFull }
func (brokenStorage) Delete(context.Context, string) error      { return errDiskFull }

func stored(t *testing.T, s Storage) string {
	t.Helper()
	v, err := s.Get(context.Background(), AccessTokenKey)
	require.NoError(t, err)
	return v
}

func TestCredentialStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("remember writes through", func(t *testing.T) {
		storage := NewMemoryStorage()
		creds := NewCredentialStore(storage)

		require.NoError(t, creds.Save(ctx, "tok1", true))
		require.Equal(t, "tok1", creds.Token())
		require.True(t, creds.Remembered())
		require.Equal(t, "tok1", stored(t, storage))
	})

	t.Run("no remember removes a stale entry", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Set(ctx, AccessTokenKey, "old"))
		creds := NewCredentialStore(storage)

		require.NoError(t, creds.Save(ctx, "tok2", false))
		require.Equal(t, "tok2", creds.Token())
		require.False(t, creds.Remembered())
		require.Empty(t, stored(t, storage))
	})

	t.Run("replace keeps the remember choice", func(t *testing.T) {
		storage := NewMemoryStorage()
		creds := NewCredentialStore(storage)

		require.NoError(t, creds.Save(ctx, "tok1", true))
		require.NoError(t, creds.Replace(ctx, "tok2"))
		require.Equal(t, "tok2", stored(t, storage))

		require.NoError(t, creds.Save(ctx, "tok3", false))
		require.NoError(t, creds.Replace(ctx, "tok4"))
		require.Equal(t, "tok4", creds.Token())
		require.Empty(t, stored(t, storage))
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		storage := NewMemoryStorage()
		creds := NewCredentialStore(storage)
		require.NoError(t, creds.Save(ctx, "tok1", true))

		require.NoError(t, creds.Clear(ctx))
		require.NoError(t, creds.Clear(ctx))
		require.Empty(t, creds.Token())
		require.False(t, creds.Remembered())
		require.Empty(t, stored(t, storage))
	})

	t.Run("forget leaves memory alone", func(t *testing.T) {
		storage := NewMemoryStorage()
		creds := NewCredentialStore(storage)
		require.NoError(t, creds.Save(ctx, "tok1", true))

		require.NoError(t, creds.Forget(ctx))
		require.Equal(t, "tok1", creds.Token())

		got, err := creds.Stored(ctx)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("storage failure keeps memory correct", func(t *testing.T) {
		creds := NewCredentialStore(brokenStorage{NewMemoryStorage()})

		err := creds.Save(ctx, "tok1", true)
		require.ErrorIs(t, err, errDiskFull)
		require.Equal(t, "tok1", creds.Token())

		err = creds.Clear(ctx)
		require.ErrorIs(t, err, errDiskFull)
		require.Empty(t, creds.Token())
	})

	t.Run("nil storage is in-memory", func(t *testing.T) {
		creds := NewCredentialStore(nil)
		require.NoError(t, creds.Save(ctx, "tok1", true))

		got, err := creds.Stored(ctx)
		require.NoError(t, err)
		require.Equal(t, "tok1", got)
	})
}
