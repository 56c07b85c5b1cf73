package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
)

// TokenVerifier checks a raw bearer token and returns its subject.
type TokenVerifier func(raw string) (subject string, err error)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// AuthnMiddleware rejects requests without a valid bearer token with a 401
// and stores the token's subject in the request context.
func AuthnMiddleware(verify TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			subject, err := verify(raw)
			if err != nil {
				log.Debug("bearer token rejected", "err", err)
				writeBearerError(w, "invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeBearerError sends an RFC 6750 challenge with a JSON body the
// storefront client can read.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
