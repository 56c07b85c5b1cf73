package identitytest

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/cryptox"

	"github.com/golang-jwt/jwt/v5"
)

var errStaleGeneration = errors.New("identitytest: token generation revoked")

// accessClaims are the claims of an access token. Gen ties the token to the
// generation it was issued in.
type accessClaims struct {
	jwt.RegisteredClaims

	Gen   int64  `json:"gen"`
	Email string `json:"email,omitempty"`
}

func randomSecret() []byte {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return b
}

func (s *Server) signAccess(u User, issued time.Time, ttl time.Duration) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
		Gen:   s.generation.Load(),
		Email: u.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// verifyAccess validates an access token and returns its subject. It is the
// httpx.TokenVerifier for protected routes.
func (s *Server) verifyAccess(raw string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return "", err
	}
	if claims.Gen != s.generation.Load() {
		return "", errStaleGeneration
	}

	s.mu.Lock()
	_, ok := s.byID[claims.Subject]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("identitytest: unknown subject %q", claims.Subject)
	}

	return claims.Subject, nil
}

// issueTicketLocked stores a new renewal ticket for userID and returns the
// opaque value. Only its fingerprint is kept.
func (s *Server) issueTicketLocked(userID string) (string, error) {
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	s.tickets[cryptox.FingerprintToken(opaque)] = ticket{
		userID:    userID,
		expiresAt: s.cfg.Now().Add(s.cfg.TicketTTL),
	}
	return opaque, nil
}

func (s *Server) setTicketCookie(w http.ResponseWriter, opaque string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TicketCookie,
		Value:    opaque,
		Path:     "/api/auth",
		MaxAge:   int(s.cfg.TicketTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTicketCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TicketCookie,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
