package identitytest

import (
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/idx"
)

// AddUser creates an account directly, without issuing any tokens.
func (s *Server) AddUser(name, email, password string) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.createAccountLocked(name, email, password)
	return acc.User
}

// Calls reports how many requests reached route.
func (s *Server) Calls(route string) int {
	return int(s.counter(route).Load())
}

// ResetCalls zeroes every route counter.
func (s *Server) ResetCalls() {
	s.calls.Range(func(key, _ any) bool {
		s.calls.Delete(key)
		return true
	})
}

// InjectFault makes the next times requests to route fail with status
// before reaching the handler.
func (s *Server) InjectFault(route string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = &fault{status: status, times: times}
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all reached their exp. Renewal tickets are untouched.
func (s *Server) ExpireAccessTokens() {
	s.generation.Add(1)
}

// RevokeSessions forgets every renewal ticket, as a server-side logout of
// all devices would.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = make(map[string]ticket)
}

// Sessions reports how many renewal tickets are live.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

// IssueAccessToken mints an access token for userID that expires after
// ttl, which may be negative for an already expired token.
func (s *Server) IssueAccessToken(userID string, ttl time.Duration) (string, error) {
	return s.IssueAccessTokenAt(userID, s.cfg.Now(), ttl)
}

// IssueAccessTokenAt mints an access token for userID as if it had been
// issued at issued, valid for ttl from then.
func (s *Server) IssueAccessTokenAt(userID string, issued time.Time, ttl time.Duration) (string, error) {
	s.mu.Lock()
	acc, ok := s.byID[userID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("identitytest: unknown user %q", userID)
	}
	return s.signAccess(acc.User, issued, ttl)
}

func (s *Server) createAccountLocked(name, email, password string) *account {
	acc := &account{
		User: User{
			ID:    idx.New().String(),
			Name:  name,
			Email: strings.ToLower(strings.TrimSpace(email)),
		},
		password: password,
	}
	s.accounts[acc.Email] = acc
	s.byID[acc.ID] = acc
	return acc
}
