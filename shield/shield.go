// Package shield provides the HTTP middleware stack in front of the polyglot
// API: security headers, body ceilings, request tracing, per-IP rate
// limiting, CORS for the web client and a drain switch used on shutdown.
//
// Usage:
//
//	r := chi.NewRouter()
//	stack, mm, rl := shield.DefaultAPIStack(shield.StackConfig{
//	    MaxBody:   512 << 20,
//	    RateLimit: shield.RateLimitConfig{PerMinute: 30, Burst: 5, Enabled: true},
//	    CORS:      shield.CORSConfig{AllowedOrigins: []string{"https://example.org"}},
//	})
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
//	rl.StartGC(done, 10*time.Minute)
//	defer mm.Enable("shutting down")
package shield

import (
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"
)

// StackConfig configures DefaultAPIStack.
type StackConfig struct {
	MaxBody   int64
	RateLimit RateLimitConfig
	CORS      CORSConfig
	// Exclude lists path prefixes that bypass maintenance and rate limiting.
	Exclude []string
}

// DefaultAPIStack returns the standard middleware stack for the API.
// Middleware is ordered: CORS → Maintenance → HeadToGet → SecurityHeaders →
// MaxBody → TraceID → RateLimiter. The returned MaintenanceMode lets the
// caller drain the service before shutdown; the caller owns the
// RateLimiter's GC. Health checks (/healthz) bypass maintenance and rate
// limiting.
func DefaultAPIStack(cfg StackConfig) ([]func(http.Handler) http.Handler, *MaintenanceMode, *RateLimiter) {
	exclude := append([]string{"/healthz"}, cfg.Exclude...)
	rl := NewRateLimiter(cfg.RateLimit, exclude...)
	mm := NewMaintenanceMode(exclude...)
	return []func(http.Handler) http.Handler{
		CORS(cfg.CORS),
		mm.Middleware,
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(cfg.MaxBody),
		TraceID,
		rl.Middleware,
	}, mm, rl
}
