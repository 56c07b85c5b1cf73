// Package redis is a sessionsdk.Storage backed by Redis, for kiosk and
// multi-process deployments that share one storefront profile.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/cryptox"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"

	"github.com/redis/go-redis/v9"
)

var _ sessionsdk.Storage = (*Store)(nil)

// DefaultPrefix namespaces keys when no prefix is given.
const DefaultPrefix = "brewhouse:storage:"

// Store keeps each storage key as a Redis string under a common prefix.
type Store struct {
	client *redis.Client
	prefix string
	sealer *cryptox.Sealer
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts every value before it leaves the process. Values
// written without a sealer cannot be read with one, and vice versa.
func WithSealer(s *cryptox.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// New wraps an existing client. An empty prefix means DefaultPrefix.
func New(client *redis.Client, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr, password, prefix string, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(client, prefix, opts...), nil
}

func (s *Store) Close() error { return s.client.Close() }

// Get returns the value for key, or "" when it is absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", key, err)
	}

	if s.sealer == nil {
		return value, nil
	}
	plain, err := s.sealer.OpenString(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %q: %w", key, err)
	}
	return plain, nil
}

// Set stores key without expiry; the identity service decides how long a
// credential stays valid.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.sealer != nil {
		sealed, err := s.sealer.SealString(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %q: %w", key, err)
		}
		value = sealed
	}

	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}
