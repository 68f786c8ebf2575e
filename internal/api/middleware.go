package api

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"itemsvc/internal/metrics"
)

// accountingMiddleware counts every request, and once the handler returns
// logs method, path, status and duration and counts status >= 400 as an
// error. It is the only place request and error counters are incremented.
func accountingMiddleware(m *metrics.Registry, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RecordRequest()
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				elapsed := time.Since(start)
				if rw.statusCode >= http.StatusBadRequest {
					m.RecordError()
				}
				m.ObserveRequest(r.Method, r.URL.Path, rw.statusCode, elapsed)

				var evt *zerolog.Event
				switch {
				case rw.statusCode >= http.StatusInternalServerError:
					evt = logger.Error()
				case rw.statusCode >= http.StatusBadRequest:
					evt = logger.Warn()
				default:
					evt = logger.Info()
				}
				evt.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", rw.statusCode).
					Dur("duration", elapsed).
					Int("bytes", rw.bytes).
					Str("remote", r.RemoteAddr).
					Msg("request")
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// recoverMiddleware turns a panic into a 500 response. Outside production
// the response carries the panic value and stack.
func recoverMiddleware(logger zerolog.Logger, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := string(debug.Stack())
				logger.Error().
					Str("panic", fmt.Sprint(rec)).
					Str("stack", stack).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("handler panicked")

				resp := errorResponse{Error: "Internal server error", Message: "Something went wrong"}
				if !production {
					resp.Message = fmt.Sprint(rec)
					resp.Stack = stack
				}
				writeJSON(w, http.StatusInternalServerError, resp)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

// WriteHeader captures the status code and writes the header.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.statusCode = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// authMiddleware enforces API-key authentication via Bearer tokens.
func authMiddleware(validKeys map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="itemsvc"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if _, ok := validKeys[token]; !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="itemsvc", error="invalid_token"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxLimiters caps the per-client limiter table; past it the table is reset.
const maxLimiters = 10000

// rateLimiter keeps a token bucket per client address.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	logger   zerolog.Logger
}

func newRateLimiter(rps float64, burst int, logger zerolog.Logger) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		logger:   logger,
	}
}

func (rl *rateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler rejects requests over the client's budget with 429.
func (rl *rateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.limiter(key).Allow() {
			rl.logger.Warn().
				Str("key", key).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
