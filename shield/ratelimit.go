package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the per-IP token bucket applied to every
// non-excluded request.
type RateLimitConfig struct {
	PerMinute int  `yaml:"per_minute"`
	Burst     int  `yaml:"burst"`
	Enabled   bool `yaml:"enabled"`
}

type visitor struct {
	lim  *rate.Limiter
	seen atomic.Int64 // unix nanos of the last request
}

// RateLimiter provides per-IP rate limiting with one token bucket per
// client. Idle buckets are garbage collected by StartGC.
type RateLimiter struct {
	cfg      RateLimitConfig
	visitors sync.Map // ip -> *visitor
	exclude  []string // path prefixes excluded from rate limiting
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter. Paths matching any of
// excludePrefixes are never limited.
func NewRateLimiter(cfg RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &RateLimiter{cfg: cfg, exclude: excludePrefixes, now: time.Now}
}

// StartGC starts a background goroutine that drops buckets idle for more
// than idle. Stops when done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, idle time.Duration) {
	tick := time.NewTicker(idle)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc(idle)
			}
		}
	}()
}

func (rl *RateLimiter) gc(idle time.Duration) {
	cutoff := rl.now().Add(-idle).UnixNano()
	rl.visitors.Range(func(key, value any) bool {
		if value.(*visitor).seen.Load() < cutoff {
			rl.visitors.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	if !rl.cfg.Enabled || rl.cfg.PerMinute <= 0 {
		return true
	}
	now := rl.now()
	v, ok := rl.visitors.Load(ip)
	if !ok {
		every := rate.Every(time.Minute / time.Duration(rl.cfg.PerMinute))
		v, _ = rl.visitors.LoadOrStore(ip, &visitor{lim: rate.NewLimiter(every, rl.cfg.Burst)})
	}
	vis := v.(*visitor)
	vis.seen.Store(now.UnixNano())
	return vis.lim.AllowN(now, 1)
}

// Middleware is the HTTP middleware that enforces rate limits with a 429
// JSON response.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)

		retry := 60
		if rl.cfg.PerMinute > 0 {
			retry = max(1, 60/rl.cfg.PerMinute)
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"detail": "rate limit exceeded",
		})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
