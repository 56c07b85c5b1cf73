package sessionsdk

import (
	"context"
	"fmt"
	"sync"
)

// CredentialStore holds the current access credential in memory and mirrors
// it to durable storage only for remember-me sessions.
//
// Durable storage never holds a credential for a session that did not opt
// in: every Save either overwrites or deletes the stored entry.
type CredentialStore struct {
	storage Storage

	mu       sync.RWMutex
	token    string
	remember bool
}

// NewCredentialStore creates a store backed by storage. A nil storage means
// an in-memory one.
func NewCredentialStore(storage Storage) *CredentialStore {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &CredentialStore{storage: storage}
}

// Save sets the in-memory credential. With remember it is written to durable
// storage, otherwise any previously stored value is removed.
//
// Memory is updated before storage is touched, so a storage failure leaves
// the in-memory credential correct and is reported to the caller.
func (s *CredentialStore) Save(ctx context.Context, token string, remember bool) error {
	s.mu.Lock()
	s.token = token
	s.remember = remember
	s.mu.Unlock()

	if remember {
		if err := s.storage.Set(ctx, AccessTokenKey, token); err != nil {
			return fmt.Errorf("failed to persist access credential: %w", err)
		}
		return nil
	}

	if err := s.storage.Delete(ctx, AccessTokenKey); err != nil {
		return fmt.Errorf("failed to remove stored access credential: %w", err)
	}
	return nil
}

// Replace swaps in a renewed credential, keeping the session's remember
// choice. A remembered session keeps its durable copy current; any other
// session stays memory-only.
func (s *CredentialStore) Replace(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	remember := s.remember
	s.mu.Unlock()

	if !remember {
		return nil
	}
	if err := s.storage.Set(ctx, AccessTokenKey, token); err != nil {
		return fmt.Errorf("failed to persist access credential: %w", err)
	}
	return nil
}

// Clear empties both the in-memory credential and the durable entry.
// Calling it again is harmless.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.remember = false
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, AccessTokenKey); err != nil {
		return fmt.Errorf("failed to remove stored access credential: %w", err)
	}
	return nil
}

// Forget removes the durable entry only, leaving memory alone.
func (s *CredentialStore) Forget(ctx context.Context) error {
	if err := s.storage.Delete(ctx, AccessTokenKey); err != nil {
		return fmt.Errorf("failed to remove stored access credential: %w", err)
	}
	return nil
}

// Stored returns the durable credential, or "" when none is stored.
func (s *CredentialStore) Stored(ctx context.Context) (string, error) {
	token, err := s.storage.Get(ctx, AccessTokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read stored access credential: %w", err)
	}
	return token, nil
}

// Token returns the in-memory credential.
func (s *CredentialStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Remembered reports whether the current credential is mirrored to storage.
func (s *CredentialStore) Remembered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remember
}
