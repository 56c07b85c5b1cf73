package sessionsdk

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrTornDown is returned by Bootstrap when its Liveness was killed, or its
// context ended, before it reached a terminal state. The session is left
// exactly as it was at that point.
var ErrTornDown = errors.New("sessionsdk: bootstrap abandoned")

// Liveness is the token a bootstrap checks after every network call. Kill it
// when whatever started the bootstrap goes away; the bootstrap then stops
// without touching the session.
type Liveness struct {
	dead atomic.Bool
}

// NewLiveness returns a live token.
func NewLiveness() *Liveness { return &Liveness{} }

// Kill marks the token dead. It is safe to call more than once.
func (l *Liveness) Kill() { l.dead.Store(true) }

// Alive reports whether the token has not been killed. A nil token is
// always alive.
func (l *Liveness) Alive() bool {
	return l == nil || !l.dead.Load()
}

// Bootstrap reconstructs the session at application start and clears the
// loading flag once it settles:
//
//  1. a stored remember-me credential is checked with WhoAmI;
//  2. if there is none, or it is rejected, the ambient renewal ticket is
//     exchanged for a new credential, which is then checked with WhoAmI;
//  3. anything else ends anonymous.
//
// Steps run strictly one after another. Rejections are normal control flow
// here and are not returned; the error is non-nil only for teardown
// (ErrTornDown) or when durable storage could not be updated, in which case
// the returned state is still settled.
//
// Bootstrap is meant to run once per Session.
func (s *Session) Bootstrap(ctx context.Context, live *Liveness) (State, error) {
	logger := s.logger.With("component", "bootstrap")

	stored, err := s.creds.Stored(ctx)
	if err != nil {
		logger.Warn("failed to read stored credential", "error", err)
	}

	if stored != "" {
		user, err := s.client.WhoAmI(ctx, stored)
		if aliveErr := checkAlive(ctx, live); aliveErr != nil {
			return s.State(), aliveErr
		}
		if err == nil {
			logger.Debug("restored remembered session", "user_id", user.ID)
			return s.settle(ctx, live, user, stored, true)
		}

		logger.Debug("stored credential rejected", "error", err)
		if err := s.creds.Forget(ctx); err != nil {
			logger.Warn("failed to discard stored credential", "error", err)
		}
	}

	// The renewed credential is adopted only by the terminal commit, once
	// WhoAmI has accepted it.
	renewed, err := s.client.Renew(ctx)
	if aliveErr := checkAlive(ctx, live); aliveErr != nil {
		return s.State(), aliveErr
	}
	if err != nil {
		logger.Debug("no renewable session", "error", err)
		return s.settle(ctx, live, nil, "", false)
	}

	user, err := s.client.WhoAmI(ctx, renewed.AccessToken)
	if aliveErr := checkAlive(ctx, live); aliveErr != nil {
		return s.State(), aliveErr
	}
	if err != nil {
		logger.Warn("renewed credential rejected by user lookup", "error", err)
		return s.settle(ctx, live, nil, "", false)
	}

	logger.Debug("resumed session via renewal", "user_id", user.ID)
	return s.settle(ctx, live, user, renewed.AccessToken, false)
}

// settle moves the session into its terminal bootstrap state: Authenticated
// when user is non-nil, Anonymous otherwise. Loading is cleared here and
// nowhere else.
func (s *Session) settle(ctx context.Context, live *Liveness, user *User, token string, remember bool) (State, error) {
	return s.commit(live, func() error {
		s.loading = false
		if user == nil {
			return s.clearLocked(ctx)
		}
		return s.adoptLocked(ctx, *user, token, remember)
	})
}

// checkAlive reports teardown after a suspension point.
func checkAlive(ctx context.Context, live *Liveness) error {
	if !live.Alive() {
		return ErrTornDown
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTornDown, err)
	}
	return nil
}
