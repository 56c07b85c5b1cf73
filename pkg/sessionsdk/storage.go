package sessionsdk

import (
	"context"
	"sync"
)

// Durable storage keys.
const (
	// AccessTokenKey holds the raw access credential, present only for
	// remember-me sessions.
	AccessTokenKey = "accessToken"

	// CookiesKey holds the cookies a PersistentJar mirrors.
	CookiesKey = "cookies"
)

// Storage is durable client storage, the equivalent of a browser's
// localStorage. A missing key reads as "" with a nil error.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage is a process-local Storage. It is what a session uses when
// nothing durable is configured, and what most tests use.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
