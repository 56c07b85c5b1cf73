package sessionsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Error Kinds
// ============================================================================

// Kind classifies an Error so callers can decide how to react to it
// (retry, redirect to login, show a validation message, ...).
type Kind string

const (
	// KindNetwork is a transport failure: no response was received.
	KindNetwork Kind = "network"

	// KindValidation is a 4xx on register (bad input, duplicate email, ...).
	KindValidation Kind = "validation"

	// KindAuth is a 4xx on login, whoami or renew: bad credentials or an
	// expired/absent session.
	KindAuth Kind = "auth"

	// KindSessionExpired means renewal itself failed while retrying an
	// authenticated request. Callers should send the user to login.
	KindSessionExpired Kind = "session_expired"

	// KindNotAuthenticated means an authenticated call was attempted with no
	// access credential held. Nothing was sent.
	KindNotAuthenticated Kind = "not_authenticated"

	// KindServer is a 5xx from the identity service.
	KindServer Kind = "server"

	// KindHTTP is any other non-success response from an authenticated request.
	KindHTTP Kind = "http"

	// KindDecode means a success response could not be decoded.
	KindDecode Kind = "decode"
)

// Machine-readable codes carried on Error.Code. Codes supplied by the
// identity service in a "code" field take precedence over these defaults.
const (
	CodeValidation         = "validation_error"
	CodeEmailInUse         = "email_in_use"
	CodeInvalidEmail       = "invalid_email"
	CodeWeakPassword       = "weak_password"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidToken       = "invalid_token"
	CodeNoSession          = "no_session"
	CodeSessionExpired     = "session_expired"
	CodeNotAuthenticated   = "not_authenticated"
	CodeNotSupported       = "not_supported"
	CodeNetwork            = "network_error"
	CodeServer             = "server_error"
	CodeRequestFailed      = "request_failed"
	CodeDecode             = "decode_error"
	CodeRateLimited        = "rate_limit_exceeded"
)

// ============================================================================
// Error
// ============================================================================

// Error is the uniform error returned by every SDK operation.
type Error struct {
	// Kind is the error class (see the Kind constants).
	Kind Kind

	// Code is a machine-readable reason, e.g. "invalid_credentials".
	Code string

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Message is the human-readable reason. For service errors it is the
	// "error" or "message" field of the JSON body.
	Message string

	// Body is the raw JSON error body. Nil when the response was not JSON.
	Body json.RawMessage

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, and by Code when the target sets one.
// This lets the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is. They only carry a Kind.
var (
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrAuth             = &Error{Kind: KindAuth}
	ErrSessionExpired   = &Error{Kind: KindSessionExpired}
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrServer           = &Error{Kind: KindServer}
	ErrHTTP             = &Error{Kind: KindHTTP}

	// ErrNotSupported is returned by sign-in flows the identity service does
	// not expose yet.
	ErrNotSupported = &Error{
		Kind:    KindAuth,
		Code:    CodeNotSupported,
		Message: "operation is not enabled on this identity service",
	}
)

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func networkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Code:    CodeNetwork,
		Message: "failed to send request",
		Err:     err,
	}
}

func notAuthenticatedError() *Error {
	return &Error{
		Kind:    KindNotAuthenticated,
		Code:    CodeNotAuthenticated,
		Message: "not authenticated",
	}
}

func sessionExpiredError(cause error) *Error {
	return &Error{
		Kind:    KindSessionExpired,
		Code:    CodeSessionExpired,
		Status:  http.StatusUnauthorized,
		Message: "Session expired. Please login again.",
		Err:     cause,
	}
}

// ============================================================================
// User-facing messages
// ============================================================================

const genericFailureMessage = "Something went wrong. Please try again."

var friendlyMessages = map[string]string{
	CodeEmailInUse:         "This email is already registered.",
	CodeInvalidEmail:       "Please enter a valid email address.",
	CodeWeakPassword:       "Password is too weak. Please use a stronger password.",
	CodeInvalidCredentials: "Invalid credentials. Please check your email and password.",
	CodeRateLimited:        "Too many attempts. Please wait and try again.",
	CodeNetwork:            "Network error. Check your connection.",
	CodeSessionExpired:     "Session expired. Please login again.",
	CodeNotAuthenticated:   "Please log in to continue.",
	CodeNotSupported:       "This sign-in method is not available yet.",
}

// FriendlyMessage returns text suitable for showing to a shopper.
// Known codes map to fixed wording; validation errors fall back to the
// service's own message; everything else gets a generic apology.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return genericFailureMessage
	}

	if msg, ok := friendlyMessages[e.Code]; ok {
		return msg
	}
	if e.Kind == KindValidation && e.Message != "" {
		return e.Message
	}
	return genericFailureMessage
}
