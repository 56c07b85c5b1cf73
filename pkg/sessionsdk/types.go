package sessionsdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Identity Types
// ============================================================================

// UserID is the identity service's user identifier. Services differ on
// whether they send it as a JSON number or a string, so both decode.
type UserID string

// UnmarshalJSON accepts a JSON string or number.
func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// String returns the identifier as a string.
func (id UserID) String() string { return string(id) }

// User is the read-only identity record cached for the session's lifetime.
type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ============================================================================
// Request Types
// ============================================================================

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ============================================================================
// Response Types
// ============================================================================

// AuthResponse is returned by register and login. The renewal ticket arrives
// separately as an HTTP-only cookie.
type AuthResponse struct {
	Success     bool   `json:"success,omitempty"`
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// RenewResponse is returned by POST /api/auth/refresh.
type RenewResponse struct {
	Success     bool   `json:"success,omitempty"`
	AccessToken string `json:"accessToken"`
}

// LogoutResponse is returned by POST /api/auth/logout.
type LogoutResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message"`
}

// ============================================================================
// Session State
// ============================================================================

// State is a snapshot of the session: who is logged in, with which access
// credential, and whether a bootstrap is still in flight.
type State struct {
	User        *User
	AccessToken string
	Loading     bool

	// ExpiresAt is the access credential's exp claim when it is a JWT,
	// zero otherwise.
	ExpiresAt time.Time
}

// Authenticated reports whether a user and credential are both held.
func (s State) Authenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// Anonymous reports a settled logged-out state. It is never true while
// Loading, so UIs can avoid redirect flicker during bootstrap.
func (s State) Anonymous() bool {
	return !s.Loading && !s.Authenticated()
}
