// CLAUDE:SUMMARY HTTP surface of the polyglot engine: chi routes, shield stack, generation slots, MCP endpoint.
// CLAUDE:DEPENDS engine, shield, kit, observability, safeio
// Package api exposes the engine over HTTP: multipart generation and dry
// runs, the combination catalogue, a health check and a streamable MCP
// endpoint carrying the same tools.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/glotfile/engine"
	"github.com/hazyhaar/glotfile/kit"
	"github.com/hazyhaar/glotfile/observability"
	"github.com/hazyhaar/glotfile/shield"
)

// Version is reported by /healthz and the MCP implementation.
var Version = "dev"

// Server routes HTTP requests to an Engine.
type Server struct {
	cfg      *Config
	eng      *engine.Engine
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	mm       *shield.MaintenanceMode
	rl       *shield.RateLimiter
	metrics  *observability.MetricsManager
	logger   *slog.Logger
	handler  http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records slot waits through mm.
func WithMetrics(mm *observability.MetricsManager) Option {
	return func(s *Server) { s.metrics = mm }
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the router. cfg must be valid.
func NewServer(cfg *Config, eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		eng:    eng,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	stack, mm, rl := shield.DefaultAPIStack(shield.StackConfig{
		MaxBody:   cfg.MaxBodyBytes(),
		RateLimit: cfg.RateLimit,
		CORS:      cfg.CORS,
	})
	s.mm, s.rl = mm, rl
	if cfg.Maintenance {
		mm.Enable(cfg.MaintenanceMessage)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "glotfile", Version: Version}, nil)
	eng.RegisterMCP(mcpSrv, s.slotEndpoint)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)

	r := chi.NewRouter()
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/combinations", s.handleCombinations)
		r.With(s.slotHTTP).Post("/generate-polyglot", s.handleGenerate)
		r.With(s.slotHTTP).Post("/plan", s.handlePlan)
	})
	r.Handle("/mcp", mcpHandler)
	s.handler = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Maintenance returns the drain switch.
func (s *Server) Maintenance() *shield.MaintenanceMode { return s.mm }

// StartGC drops idle rate-limit buckets until done is closed.
func (s *Server) StartGC(done <-chan struct{}) { s.rl.StartGC(done, 10*time.Minute) }

// acquire waits up to QueueTimeout for a generation slot.
func (s *Server) acquire(ctx context.Context) (release func(), ok bool) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueueTimeout)
	defer cancel()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	s.metrics.RecordSimple(observability.MetricSlotWaitMs, float64(time.Since(start).Milliseconds()), "milliseconds")
	s.inFlight.Add(1)
	return func() {
		s.inFlight.Add(-1)
		s.sem.Release(1)
	}, true
}

func (s *Server) slotHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, ok := s.acquire(r.Context())
		if !ok {
			w.Header().Set("Retry-After", "5")
			writeDetail(w, http.StatusServiceUnavailable, "server busy, retry shortly")
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) slotEndpoint(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		release, ok := s.acquire(ctx)
		if !ok {
			return nil, errBusy
		}
		defer release()
		return next(ctx, req)
	}
}
