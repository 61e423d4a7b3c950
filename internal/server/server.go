package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rohankatakam/relay/internal/activity"
	"github.com/rohankatakam/relay/internal/clock"
	"github.com/rohankatakam/relay/internal/config"
	"github.com/rohankatakam/relay/internal/githost"
	"github.com/rohankatakam/relay/internal/graph"
	"github.com/rohankatakam/relay/internal/locks"
)

// Server is the plain-JSON request plane. Handlers are linear; all shared
// state lives in the KV store behind the registry, graph store and feed.
type Server struct {
	cfg        config.ServerConfig
	cronSecret string
	host       githost.Host
	registry   locks.Registry
	graphs     *graph.Builder
	graphStore *graph.Store
	feed       *activity.Log
	clk        clock.Clock
	logger     *slog.Logger
}

// New wires the request plane onto the core components
func New(cfg config.ServerConfig, cronSecret string, host githost.Host, registry locks.Registry, graphs *graph.Builder, graphStore *graph.Store, feed *activity.Log, clk clock.Clock) *Server {
	return &Server{
		cfg:        cfg,
		cronSecret: cronSecret,
		host:       host,
		registry:   registry,
		graphs:     graphs,
		graphStore: graphStore,
		feed:       feed,
		clk:        clk,
		logger:     slog.Default().With("component", "server"),
	}
}

// Register mounts all plain-JSON routes on the mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("POST /check_status", s.wrap(s.cfg.RequestTimeout, s.handleCheckStatus))
	mux.Handle("POST /post_status", s.wrap(s.cfg.RequestTimeout, s.handlePostStatus))
	mux.Handle("GET /graph", s.wrap(s.cfg.GraphTimeout, s.handleGraph))
	mux.Handle("GET /activity", s.wrap(s.cfg.RequestTimeout, s.handleActivity))
	mux.Handle("POST /release_all_locks", s.wrap(s.cfg.RequestTimeout, s.handleReleaseAll))
	mux.Handle("POST /clear_agent_and_feed", s.wrap(s.cfg.RequestTimeout, s.handleClearAgentAndFeed))
	mux.Handle("GET /cleanup_stale_locks", s.wrap(s.cfg.RequestTimeout, s.handleCleanup))
}

// Handler returns a standalone handler with all routes mounted
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// wrap applies the per-request deadline, a request id, and access logging
func (s *Server) wrap(timeout time.Duration, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r.WithContext(ctx))

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// statusWriter records the status code for access logging
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
