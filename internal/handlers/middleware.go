package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"proctorexam/internal/identity"
	"proctorexam/internal/models"
	"proctorexam/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	CallerContextKey ContextKey = "caller"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	verifier *identity.Verifier
	limiter  *security.RateLimiter
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(verifier *identity.Verifier, limiter *security.RateLimiter) *Middleware {
	return &Middleware{
		verifier: verifier,
		limiter:  limiter,
	}
}

// RequireCaller is middleware that requires a valid bearer token
func (m *Middleware) RequireCaller(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Code: "unauthenticated"})
			return
		}

		caller, err := m.verifier.Verify(token)
		if err != nil {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token", Code: "unauthenticated"})
			return
		}

		ctx := context.WithValue(r.Context(), CallerContextKey, caller)
		next(w, r.WithContext(ctx))
	}
}

// RateLimit throttles a caller per attempt. It must run inside RequireCaller.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := GetCallerFromContext(r.Context())
		key := caller.StudentID + ":" + r.PathValue("id")
		if m.limiter != nil && !m.limiter.Allow(key) {
			w.Header().Set("Retry-After", "60")
			respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests", Code: "rate_limited", Retryable: true})
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		event := log.Info()
		if rec.status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// GetCallerFromContext retrieves the verified caller from the request context
func GetCallerFromContext(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(CallerContextKey).(models.Caller)
	return caller, ok
}
