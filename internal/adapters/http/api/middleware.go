package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		status := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)
		if wrapped.statusCode >= http.StatusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType(wrapped.statusCode))
		}
	}
}

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestID echoes the caller's request id, or assigns a fresh one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func errorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case statusCode == http.StatusConflict:
		return "conflict"
	case statusCode == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

const defaultLimiterIdle = 30 * time.Minute

// WorkerLimiter applies a token bucket per X-Worker-ID. Buckets of workers
// that stay quiet for the idle TTL are dropped.
type WorkerLimiter struct {
	buckets *gocache.Cache
	rps     rate.Limit
	burst   int
}

// LimiterOption configures a WorkerLimiter.
type LimiterOption func(*limiterConfig)

type limiterConfig struct {
	idle time.Duration
}

// WithLimiterIdle sets how long an unused bucket is kept.
func WithLimiterIdle(d time.Duration) LimiterOption {
	return func(c *limiterConfig) {
		if d > 0 {
			c.idle = d
		}
	}
}

// NewWorkerLimiter allows rps requests per second per worker with the given burst.
func NewWorkerLimiter(rps float64, burst int, opts ...LimiterOption) *WorkerLimiter {
	if burst <= 0 {
		burst = 1
	}
	cfg := limiterConfig{idle: defaultLimiterIdle}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &WorkerLimiter{
		buckets: gocache.New(cfg.idle, cfg.idle),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether the worker may make a request now.
func (l *WorkerLimiter) Allow(workerID string) bool {
	return l.get(workerID).Allow()
}

func (l *WorkerLimiter) get(workerID string) *rate.Limiter {
	if v, ok := l.buckets.Get(workerID); ok {
		lim := v.(*rate.Limiter)
		l.buckets.SetDefault(workerID, lim)
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	if err := l.buckets.Add(workerID, lim, gocache.DefaultExpiration); err != nil {
		// lost the race to another request of the same worker
		if v, ok := l.buckets.Get(workerID); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Middleware rejects requests over the worker's budget with 429. Requests
// without a worker id pass through; the handler rejects them.
func (l *WorkerLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := workerID(r)
		if ok && !l.Allow(id) {
			metrics.RecordRateLimited()
			writeError(r.Context(), logger.Nop(), w,
				WrapKind("api.limit", ErrRateLimited, fmt.Errorf("too many requests for worker %s", id)))
			return
		}
		next(w, r)
	}
}
