package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/botirjon13/oyin-backent/internal/ratelimit"
	"github.com/botirjon13/oyin-backent/pkg/logger"
	"github.com/botirjon13/oyin-backent/pkg/metrics"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// observe logs each request and records per-route Prometheus metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}

		duration := time.Since(start)
		metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(rec.status), duration)

		s.log.Info("http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
			"correlation_id", logger.CorrelationIDFromContext(r.Context()),
		)
	})
}

// rateLimit enforces the per-client sliding window on API routes. Probe and
// metrics endpoints are exempt.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config()
		if s.limiter == nil || !cfg.RateLimit.Enabled || exemptFromRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		result, err := s.limiter.Check(r.Context(), clientIP(r), cfg.RateLimit.Limit, cfg.RateLimit.Window)
		if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
			// the limiter failing must not take the API down
			s.log.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			route := r.URL.Path
			metrics.RecordRateLimited(route)

			retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			tr := s.translator(r)
			writeJSON(w, http.StatusTooManyRequests, errorEnvelope{Error: errorBody{
				Code:    "rate_limited",
				Message: tr.T("errors.rate_limited"),
			}})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func exemptFromRateLimit(path string) bool {
	switch path {
	case "/metrics", "/healthz", "/readyz", "/livez":
		return true
	}
	return false
}

// clientIP extracts the caller address, preferring the first hop recorded
// by a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
