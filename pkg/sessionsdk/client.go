package sessionsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
)

// Identity service endpoints.
const (
	pathRegister = "/api/auth/register"
	pathLogin    = "/api/auth/login"
	pathMe       = "/api/auth/me"
	pathRefresh  = "/api/auth/refresh"
	pathLogout   = "/api/auth/logout"
)

// DefaultTimeout bounds every request made by an SDKClient built without a
// custom http.Client.
const DefaultTimeout = 10 * time.Second

// SDKClient talks to the identity service. It holds no session state of its
// own apart from the cookie jar, which carries the renewal ticket the way a
// browser would: the client never reads it, it only rides along.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

type clientOptions struct {
	httpClient *http.Client
	jar        http.CookieJar
	transport  http.RoundTripper
	timeout    time.Duration
}

// Option configures NewSDKClient.
type Option func(*clientOptions)

// WithHTTPClient uses hc as-is. It must have a cookie jar for renewal to work.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithCookieJar replaces the default in-memory cookie jar, e.g. with a
// PersistentJar so the renewal ticket survives restarts.
func WithCookieJar(jar http.CookieJar) Option {
	return func(o *clientOptions) { o.jar = jar }
}

// WithTransport sets the base round-tripper under the logging transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// NewSDKClient creates a client for the identity service at baseURL.
func NewSDKClient(baseURL string, opts ...Option) *SDKClient {
	o := clientOptions{
		timeout:   DefaultTimeout,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.httpClient
	if hc == nil {
		jar := o.jar
		if jar == nil {
			// cookiejar.New only fails on a bad PublicSuffixList
			j, _ := cookiejar.New(nil)
			jar = j
		}
		hc = &http.Client{
			Timeout:   o.timeout,
			Jar:       jar,
			Transport: slogx.Transport(o.transport),
		}
	}

	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: hc,
	}
}

// Register creates an account. The service sets the renewal ticket cookie on
// success. A 4xx is reported as KindValidation (e.g. duplicate email).
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, pathRegister, req, "")
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := decodeJSON(resp, &authResp, KindValidation, CodeValidation); err != nil {
		return nil, err
	}
	if err := authResp.check(); err != nil {
		return nil, err
	}

	return &authResp, nil
}

// Login authenticates with email and password. A 4xx is reported as KindAuth.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, pathLogin, req, "")
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := decodeJSON(resp, &authResp, KindAuth, CodeInvalidCredentials); err != nil {
		return nil, err
	}
	if err := authResp.check(); err != nil {
		return nil, err
	}

	return &authResp, nil
}

// WhoAmI looks up the user behind accessToken. An invalid or expired
// credential yields KindAuth, which bootstrap treats as a normal signal.
func (c *SDKClient) WhoAmI(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, &Error{Kind: KindAuth, Code: CodeInvalidToken, Message: "no access credential"}
	}

	resp, err := c.doRequest(ctx, http.MethodGet, pathMe, nil, accessToken)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeJSON(resp, &raw, KindAuth, CodeInvalidToken); err != nil {
		return nil, err
	}

	return decodeUser(raw)
}

// Renew exchanges the ambient renewal ticket for a new access credential.
// It fails with KindAuth when no valid ticket exists.
func (c *SDKClient) Renew(ctx context.Context) (*RenewResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, pathRefresh, nil, "")
	if err != nil {
		return nil, err
	}

	var renewResp RenewResponse
	if err := decodeJSON(resp, &renewResp, KindAuth, CodeNoSession); err != nil {
		return nil, err
	}
	if renewResp.AccessToken == "" {
		return nil, &Error{
			Kind:    KindAuth,
			Code:    CodeNoSession,
			Status:  resp.StatusCode,
			Message: "renewal returned no access credential",
		}
	}

	return &renewResp, nil
}

// EndSession asks the service to invalidate the renewal ticket. It is best
// effort: callers must clean up local state whatever it returns.
func (c *SDKClient) EndSession(ctx context.Context) (*LogoutResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, pathLogout, nil, "")
	if err != nil {
		return nil, err
	}

	var logoutResp LogoutResponse
	if err := decodeJSON(resp, &logoutResp, KindAuth, CodeNoSession); err != nil {
		return nil, err
	}

	return &logoutResp, nil
}

// check verifies a register/login success payload carries what the session needs.
func (r *AuthResponse) check() error {
	switch {
	case r.AccessToken == "":
		return &Error{Kind: KindDecode, Code: CodeDecode, Message: "response missing accessToken"}
	case r.User == nil:
		return &Error{Kind: KindDecode, Code: CodeDecode, Message: "response missing user"}
	}
	return nil
}

// decodeUser accepts a bare user object or a {"user": {...}} envelope.
func decodeUser(raw json.RawMessage) (*User, error) {
	var envelope struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.User != nil {
		return envelope.User, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, &Error{Kind: KindDecode, Code: CodeDecode, Message: "failed to decode user", Err: err}
	}
	if user.ID == "" {
		return nil, &Error{Kind: KindDecode, Code: CodeDecode, Message: "user has no id"}
	}

	return &user, nil
}
