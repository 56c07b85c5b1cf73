package httpx

import (
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow tokens refill evenly
// over Window, and at most Burst can be spent at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

var (
	// StrictLimit guards login and registration.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// LenientLimit guards authenticated resource calls.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}
)

// ParseRateLimitFromEnv overlays RATELIMIT_<name>_REQUESTS, _WINDOW (a Go
// duration) and _BURST on def. Unset or invalid values keep the default.
func ParseRateLimitFromEnv(name string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	prefix := "RATELIMIT_" + name + "_"

	if n, ok := positiveEnvInt(prefix + "REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if v := os.Getenv(prefix + "WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Window = d
		}
	}
	if n, ok := positiveEnvInt(prefix + "BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnvInt(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyFunc groups requests into buckets. An empty key exempts the request.
type KeyFunc func(*http.Request) string

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyByIP buckets requests by client address.
func KeyByIP(r *http.Request) string {
	if ip := ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// KeyByUser buckets requests by the user set by AuthnMiddleware, falling
// back to the client address for anonymous requests.
func KeyByUser(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return KeyByIP(r)
}

// bucketIdle is how long an untouched bucket is kept before it is swept.
const bucketIdle = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// buckets holds one limiter per key.
type buckets struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	byKey     map[string]*bucket
	lastSweep time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	return &buckets{
		limit:     rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		byKey:     make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// reserve takes a token for key. It returns zero when the request may go
// ahead, or how long the caller should wait otherwise.
func (b *buckets) reserve(key string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) > bucketIdle {
		for k, bk := range b.byKey {
			if now.Sub(bk.lastSeen) > bucketIdle {
				delete(b.byKey, k)
			}
		}
		b.lastSweep = now
	}

	bk, ok := b.byKey[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.byKey[key] = bk
	}
	bk.lastSeen = now

	res := bk.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64)
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay
	}
	return 0
}

// RateLimit rejects requests with 429 once their key's bucket is empty.
func RateLimit(cfg RateLimitConfig, key KeyFunc) Middleware {
	b := newBuckets(cfg)
	limit := strconv.Itoa(cfg.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			wait := b.reserve(k, time.Now())
			if wait == 0 {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(math.Ceil(min(wait, time.Hour).Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		})
	}
}

// RateLimitByIP limits by client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware { return RateLimit(cfg, KeyByIP) }

// RateLimitByUser limits by authenticated user, or by address when there is
// none. Mount it after AuthnMiddleware.
func RateLimitByUser(cfg RateLimitConfig) Middleware { return RateLimit(cfg, KeyByUser) }
