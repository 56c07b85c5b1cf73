package sessionsdk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Session is the single holder of session state: the current user, the
// current access credential and the bootstrap loading flag. Every mutation
// goes through one of its methods; nothing else keeps a second copy.
type Session struct {
	client *SDKClient
	creds  *CredentialStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	user    *User
	loading bool
	// epoch advances whenever a session is adopted or cleared. Work that
	// started under an older epoch must not write into the current one.
	epoch uint64

	// notifyMu orders subscriber callbacks the same way commits are ordered.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     map[int]func(State)
	nextSub  int

	renewals singleflight.Group
}

// SessionOption configures NewSession.
type SessionOption func(*Session)

// WithLogger sets the session's logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithClock overrides time.Now, for tests that reason about expiry.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session in the loading state. Call Bootstrap once the
// application starts to settle it into Authenticated or Anonymous.
func NewSession(client *SDKClient, storage Storage, opts ...SessionOption) *Session {
	s := &Session{
		client:  client,
		creds:   NewCredentialStore(storage),
		logger:  slog.Default(),
		now:     time.Now,
		loading: true,
		subs:    make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the identity client the session uses.
func (s *Session) Client() *SDKClient { return s.client }

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AccessToken returns the current access credential, or "".
func (s *Session) AccessToken() string {
	return s.creds.Token()
}

// Subscribe registers fn to receive every new state. Callbacks run
// synchronously after each change and must not mutate the session.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// ============================================================================
// Actions
// ============================================================================

// Login authenticates and adopts the returned user and credential. With
// remember the credential is also kept in durable storage.
func (s *Session) Login(ctx context.Context, email, password string, remember bool) (*AuthResponse, error) {
	resp, err := s.client.Login(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	if err := s.SetSession(ctx, *resp.User, resp.AccessToken, remember); err != nil {
		return resp, err
	}

	s.logger.Info("session started", "user_id", resp.User.ID, "remember", remember)
	return resp, nil
}

// Register creates an account and adopts the returned user and credential.
func (s *Session) Register(ctx context.Context, name, email, password string, remember bool) (*AuthResponse, error) {
	resp, err := s.client.Register(ctx, RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	if err := s.SetSession(ctx, *resp.User, resp.AccessToken, remember); err != nil {
		return resp, err
	}

	s.logger.Info("account registered", "user_id", resp.User.ID, "remember", remember)
	return resp, nil
}

// Logout ends the server-side session on a best-effort basis and always
// clears local state, so the user is never left logged in locally.
func (s *Session) Logout(ctx context.Context) error {
	if _, err := s.client.EndSession(ctx); err != nil {
		s.logger.Warn("end session failed, clearing local state anyway", "error", err)
	}
	return s.ClearSession(ctx)
}

// SetSession adopts a freshly issued user and credential pair, for callers
// that performed the identity call themselves.
func (s *Session) SetSession(ctx context.Context, user User, accessToken string, remember bool) error {
	if accessToken == "" {
		return &Error{Kind: KindAuth, Code: CodeInvalidToken, Message: "no access credential"}
	}

	_, err := s.commit(nil, func() error {
		return s.adoptLocked(ctx, user, accessToken, remember)
	})
	return err
}

// ClearSession drops the user and credential, in memory and in storage.
// It is idempotent.
func (s *Session) ClearSession(ctx context.Context) error {
	_, err := s.commit(nil, func() error {
		return s.clearLocked(ctx)
	})
	return err
}

// GoogleLogin is a placeholder for third-party sign-in, which the identity
// service does not offer yet.
func (s *Session) GoogleLogin(context.Context) error {
	return ErrNotSupported
}

// ResetPassword is a placeholder until the identity service exposes a
// password reset endpoint.
func (s *Session) ResetPassword(context.Context, string) error {
	return ErrNotSupported
}

// ============================================================================
// Internal state handling
// ============================================================================

// errSessionChanged reports that the session was adopted or cleared while a
// renewal was in flight, so the renewal's result was discarded.
var errSessionChanged = errors.New("sessionsdk: session changed during renewal")

func (s *Session) adoptLocked(ctx context.Context, user User, token string, remember bool) error {
	s.epoch++
	s.user = &user
	return s.creds.Save(ctx, token, remember)
}

func (s *Session) clearLocked(ctx context.Context) error {
	s.epoch++
	s.user = nil
	return s.creds.Clear(ctx)
}

// credentialAt returns the current credential together with the epoch it
// belongs to.
func (s *Session) credentialAt() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Token(), s.epoch
}

// commitAt is commit for work that began under epoch. If the session has
// moved on since, fn is not run, nothing is published and errSessionChanged
// is returned.
func (s *Session) commitAt(epoch uint64, fn func() error) error {
	_, err := s.commit(nil, func() error {
		if s.epoch != epoch {
			return errSessionChanged
		}
		return fn()
	})
	return err
}

// commit applies fn under the state lock and then notifies subscribers with
// the resulting state. fn's error is returned after the state is published.
// When live is dead nothing is applied or published and ErrTornDown is
// returned; a nil live is always alive.
func (s *Session) commit(live *Liveness, fn func() error) (State, error) {
	s.mu.Lock()
	if !live.Alive() {
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st, ErrTornDown
	}
	err := fn()
	st := s.snapshotLocked()
	if errors.Is(err, errSessionChanged) {
		s.mu.Unlock()
		return st, err
	}
	s.notifyMu.Lock()
	s.mu.Unlock()

	s.notify(st)
	s.notifyMu.Unlock()

	return st, err
}

func (s *Session) notify(st State) {
	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (s *Session) snapshotLocked() State {
	st := State{
		AccessToken: s.creds.Token(),
		Loading:     s.loading,
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	if exp, ok := CredentialExpiry(st.AccessToken); ok {
		st.ExpiresAt = exp
	}
	return st
}
