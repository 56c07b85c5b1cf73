package sessionsdk

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newResponse(status int, contentType, body string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantKind    Kind
		wantCode    string
		wantMessage string
		wantBody    bool
	}{
		{
			name:        "error field",
			status:      http.StatusUnauthorized,
			contentType: "application/json",
			body:        `{"error":"Invalid credentials","code":"invalid_credentials"}`,
			wantKind:    KindAuth,
			wantCode:    CodeInvalidCredentials,
			wantMessage: "Invalid credentials",
			wantBody:    true,
		},
		{
			name:        "message field",
			status:      http.StatusBadRequest,
			contentType: "application/json; charset=utf-8",
			body:        `{"message":"Email taken"}`,
			wantKind:    KindAuth,
			wantCode:    CodeNoSession,
			wantMessage: "Email taken",
			wantBody:    true,
		},
		{
			name:        "error wins over message",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":"first","message":"second"}`,
			wantKind:    KindAuth,
			wantCode:    CodeNoSession,
			wantMessage: "first",
			wantBody:    true,
		},
		{
			name:        "not json",
			status:      http.StatusBadGateway,
			contentType: "text/html",
			body:        "<html>bad gateway</html>",
			wantKind:    KindServer,
			wantCode:    CodeServer,
			wantMessage: "request failed with status 502",
		},
		{
			name:        "json content type with garbage",
			status:      http.StatusForbidden,
			contentType: "application/json",
			body:        "not json",
			wantKind:    KindAuth,
			wantCode:    CodeNoSession,
			wantMessage: "request failed with status 403",
		},
		{
			name:        "non-string fields are ignored",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":{"nested":true},"code":7}`,
			wantKind:    KindAuth,
			wantCode:    CodeNoSession,
			wantMessage: "request failed with status 400",
			wantBody:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newResponse(tt.status, tt.contentType, tt.body)
			e := parseErrorResponse(resp, []byte(tt.body), KindAuth, CodeNoSession)

			require.Equal(t, tt.wantKind, e.Kind)
			require.Equal(t, tt.wantCode, e.Code)
			require.Equal(t, tt.status, e.Status)
			require.Equal(t, tt.wantMessage, e.Message)
			if tt.wantBody {
				require.JSONEq(t, tt.body, string(e.Body))
			} else {
				require.Nil(t, e.Body)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		var out RenewResponse
		err := decodeJSON(newResponse(200, "application/json", `{"accessToken":"abc"}`), &out, KindAuth, CodeNoSession)
		require.NoError(t, err)
		require.Equal(t, "abc", out.AccessToken)
	})

	t.Run("empty body", func(t *testing.T) {
		var out RenewResponse
		require.NoError(t, decodeJSON(newResponse(204, "", ""), &out, KindAuth, CodeNoSession))
	})

	t.Run("malformed success", func(t *testing.T) {
		var out RenewResponse
		err := decodeJSON(newResponse(200, "application/json", `{"accessToken":`), &out, KindAuth, CodeNoSession)
		require.ErrorIs(t, err, &Error{Kind: KindDecode})
	})

	t.Run("failure", func(t *testing.T) {
		err := decodeJSON(newResponse(409, "application/json", `{"error":"Email already in use","code":"email_in_use"}`), nil, KindValidation, CodeValidation)
		require.ErrorIs(t, err, ErrValidation)

		var e *Error
		require.ErrorAs(t, err, &e)
		require.Equal(t, CodeEmailInUse, e.Code)
		require.Equal(t, 409, e.Status)
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	c := NewSDKClient("https://shop.example.com/")

	require.Equal(t, "https://shop.example.com/api/orders", c.resolve("/api/orders"))
	require.Equal(t, "https://shop.example.com/api/orders", c.resolve("api/orders"))
	require.Equal(t, "http://other.example.com/x", c.resolve("http://other.example.com/x"))
}

func TestDecodeUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantID  UserID
		wantErr bool
	}{
		{"envelope", `{"success":true,"user":{"id":"u1","name":"Ada"}}`, "u1", false},
		{"bare", `{"id":"u2","email":"b@x.com"}`, "u2", false},
		{"numeric id", `{"user":{"id":42}}`, "42", false},
		{"no id", `{"name":"nobody"}`, "", true},
		{"not an object", `[1,2]`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := decodeUser(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, &Error{Kind: KindDecode})
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, u.ID)
		})
	}
}
