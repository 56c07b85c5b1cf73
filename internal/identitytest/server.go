// Package identitytest is an in-memory identity service that speaks the
// storefront's auth contract. Tests drive it directly; cmd/identity-stub
// serves it for local development.
//
// Passwords are compared in plain text. It is a test double, not a
// credential service.
package identitytest

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/httpx"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"

	"github.com/go-chi/chi/v5"
)

// Route names used by Calls and InjectFault.
const (
	RouteRegister = "register"
	RouteLogin    = "login"
	RouteMe       = "me"
	RouteRefresh  = "refresh"
	RouteLogout   = "logout"
	RouteOrders   = "orders"
)

// TicketCookie is the name of the HTTP-only renewal ticket cookie.
const TicketCookie = "refreshToken"

// Config tunes a Server. The zero value is usable.
type Config struct {
	Secret    []byte        // HS256 signing key (default: random)
	Issuer    string        // default: "brewhouse-identity"
	AccessTTL time.Duration // default: 15m
	TicketTTL time.Duration // default: 7 days

	// AuthLimit rate limits register and login per client IP. Zero means
	// httpx.StrictLimit.
	AuthLimit httpx.RateLimitConfig

	// BareUser makes /api/auth/me return the user object itself instead of
	// a {"user": ...} envelope.
	BareUser bool

	Now    func() time.Time
	Logger *slog.Logger
}

// Server is the identity service double.
type Server struct {
	cfg    Config
	router chi.Router

	mu       sync.Mutex
	accounts map[string]*account // by email
	byID     map[string]*account
	tickets  map[string]ticket // by fingerprint
	orders   map[string][]Order
	faults   map[string]*fault

	// generation is embedded in every access token; bumping it invalidates
	// all tokens issued so far.
	generation atomic.Int64

	calls sync.Map // route -> *atomic.Int64
}

type account struct {
	User
	password string
}

type ticket struct {
	userID    string
	expiresAt time.Time
}

type fault struct {
	status int
	times  int
}

// User is the identity record served by the double.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// Order is the protected demo resource behind /api/orders.
type Order struct {
	ID    string   `json:"id"`
	Items []string `json:"items"`
}

// NewServer builds a Server with its routes applied.
func NewServer(cfg Config) *Server {
	if len(cfg.Secret) == 0 {
		cfg.Secret = randomSecret()
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "brewhouse-identity"
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.TicketTTL == 0 {
		cfg.TicketTTL = 7 * 24 * time.Hour
	}
	if cfg.AuthLimit.RequestsPerWindow == 0 {
		cfg.AuthLimit = httpx.StrictLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		accounts: make(map[string]*account),
		byID:     make(map[string]*account),
		tickets:  make(map[string]ticket),
		orders:   make(map[string][]Order),
		faults:   make(map[string]*fault),
	}
	s.applyRoutes()

	return s
}

// Start serves a new Server on a loopback httptest server for the life of
// the test and returns it with its base URL. Unless cfg says otherwise,
// register and login get httpx.LenientLimit so tests are not throttled.
func Start(tb testing.TB, cfg Config) (*Server, string) {
	tb.Helper()

	if cfg.AuthLimit.RequestsPerWindow == 0 {
		cfg.AuthLimit = httpx.LenientLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slogx.Discard()
	}

	s := NewServer(cfg)
	ts := httptest.NewServer(s)
	tb.Cleanup(ts.Close)

	return s, ts.URL
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) applyRoutes() {
	r := chi.NewRouter()
	r.Use(slogx.HTTPMiddleware(s.cfg.Logger))

	r.Get("/livez", s.handleLivez)

	r.Route("/api/auth", func(r chi.Router) {
		r.With(httpx.RateLimitByIP(s.cfg.AuthLimit)).
			Post("/register", s.counted(RouteRegister, s.handleRegister))
		r.With(httpx.RateLimitByIP(s.cfg.AuthLimit)).
			Post("/login", s.counted(RouteLogin, s.handleLogin))
		r.Post("/refresh", s.counted(RouteRefresh, s.handleRefresh))
		r.Post("/logout", s.counted(RouteLogout, s.handleLogout))

		r.With(s.countedMiddleware(RouteMe), httpx.AuthnMiddleware(s.verifyAccess)).
			Get("/me", s.handleMe)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(s.countedMiddleware(RouteOrders))
		r.Use(httpx.AuthnMiddleware(s.verifyAccess))
		r.Use(httpx.RateLimitByUser(httpx.LenientLimit))
		r.Get("/", s.handleListOrders)
		r.Post("/", s.handleCreateOrder)
	})

	s.router = r
}

// counted wraps a handler with call counting and fault injection.
func (s *Server) counted(route string, h http.HandlerFunc) http.HandlerFunc {
	return s.countedMiddleware(route)(h).ServeHTTP
}

func (s *Server) countedMiddleware(route string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.counter(route).Add(1)

			if status, ok := s.takeFault(route); ok {
				if status >= http.StatusInternalServerError {
					httpx.WriteError(w, status, "server_error", "injected failure")
				} else {
					httpx.WriteError(w, status, "injected", "injected failure")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) counter(route string) *atomic.Int64 {
	c, _ := s.calls.LoadOrStore(route, new(atomic.Int64))
	return c.(*atomic.Int64)
}

func (s *Server) takeFault(route string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.faults[route]
	if !ok {
		return 0, false
	}
	f.times--
	if f.times <= 0 {
		delete(s.faults, route)
	}
	return f.status, true
}
