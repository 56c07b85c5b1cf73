package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/idx"
)

// RequestIDHeader carries a request id between client and server.
const RequestIDHeader = "X-Request-ID"

// HTTPMiddleware logs inbound requests and attaches a contextual logger into
// the request context.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = idx.New().String()
			}

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ctx := WithContext(r.Context(), logger)
			ctx = withRequestIDValue(ctx, reqID)
			r = r.WithContext(ctx)

			next.ServeHTTP(rw, r)

			logger.Info("http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Transport logs outbound requests made through base (http.DefaultTransport
// when nil). Each request gets an X-Request-ID, reused from the context when
// one is already present. Headers are never logged, so bearer credentials
// and cookies stay out of the logs.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base}
}

type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = RequestIDFromContext(req.Context())
	}
	if reqID == "" {
		reqID = idx.New().String()
	}

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set(RequestIDHeader, reqID)

	logger := FromContext(req.Context()).With(
		"req_id", reqID,
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Debug("http_client_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_client_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
