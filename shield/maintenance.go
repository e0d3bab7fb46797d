package shield

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
)

const defaultMaintenanceMessage = "service is draining, retry shortly"

// MaintenanceMode returns 503 to every non-excluded request while active.
// The server enables it before shutting down so that no new generation
// starts while in-flight ones finish; it can also start enabled from config.
type MaintenanceMode struct {
	active  atomic.Bool
	message atomic.Value // string
	exclude []string     // path prefixes that bypass maintenance (e.g. /healthz)
}

// NewMaintenanceMode creates a disabled switch. Paths matching any of
// excludePrefixes are never blocked.
func NewMaintenanceMode(excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{exclude: excludePrefixes}
	m.message.Store(defaultMaintenanceMessage)
	return m
}

// Active reports whether maintenance mode is currently on.
func (m *MaintenanceMode) Active() bool {
	return m.active.Load()
}

// Message returns the current maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// Enable turns maintenance on. An empty message keeps the previous one.
func (m *MaintenanceMode) Enable(message string) {
	if message != "" {
		m.message.Store(message)
	}
	if !m.active.Swap(true) {
		slog.Warn("maintenance: mode ENABLED", "message", m.Message())
	}
}

// Disable turns maintenance off.
func (m *MaintenanceMode) Disable() {
	if m.active.Swap(false) {
		slog.Info("maintenance: mode DISABLED")
	}
}

// Middleware blocks requests with a 503 JSON body while maintenance mode is
// active. Excluded prefixes pass through.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}

		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"detail": m.Message()})
	})
}
