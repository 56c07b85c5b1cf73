package sessionsdk

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryBuffer treats a credential as stale slightly before its exp claim,
// so a request is not sent with a token that will expire in flight. For
// short-lived credentials the buffer shrinks to a quarter of the lifetime.
const expiryBuffer = 30 * time.Second

// credentialClaims parses a JWT access credential without verifying it: the
// client only uses the claims to avoid sending a request certain to fail.
func credentialClaims(token string) (*jwt.RegisteredClaims, bool) {
	if token == "" {
		return nil, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, false
	}
	if claims.ExpiresAt == nil {
		return nil, false
	}
	return &claims, true
}

// CredentialExpiry returns the exp claim of a JWT access credential. Opaque
// credentials report false.
func CredentialExpiry(token string) (time.Time, bool) {
	claims, ok := credentialClaims(token)
	if !ok {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// credentialStale reports whether token is a JWT close enough to its expiry
// that it should be renewed before use.
func credentialStale(token string, now time.Time) bool {
	claims, ok := credentialClaims(token)
	if !ok {
		return false
	}
	exp := claims.ExpiresAt.Time
	return !now.Before(exp.Add(-renewalBuffer(claims)))
}

// renewalBuffer is expiryBuffer capped at a quarter of the credential's
// lifetime when its iat claim is known.
func renewalBuffer(claims *jwt.RegisteredClaims) time.Duration {
	if claims.IssuedAt == nil {
		return expiryBuffer
	}
	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if lifetime <= 0 {
		return expiryBuffer
	}
	return min(expiryBuffer, lifetime/4)
}
