package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
	"github.com/applegrew/jdcbot-sub001/pkg/stats"
)

const defaultTopSharers = 10

// Server is the status HTTP server.
type Server struct {
	config  Config
	source  Source
	metrics http.Handler
	logger  logger.Logger
	router  chi.Router
}

// New creates a status server. metricsHandler may be nil, in which case
// /metrics is not mounted.
func New(cfg Config, src Source, metricsHandler http.Handler, log logger.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:9411"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		config:  cfg,
		source:  src,
		metrics: metricsHandler,
		logger:  log,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/users", s.handleUsers)
	r.Get("/users/{nick}", s.handleUser)
	r.Get("/stats", s.handleStats)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server failed: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown", "error", err)
			return httpServer.Close()
		}
		s.logger.Debug("status server stopped")
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.Snapshot()

	code := http.StatusOK
	if !snap.Connected {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, snap)
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.source.Users()
	if users == nil {
		users = []roster.User{}
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	nick := chi.URLParam(r, "nick")
	for _, u := range s.source.Users() {
		if u.Nick == nick {
			s.writeJSON(w, http.StatusOK, u)
			return
		}
	}
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	top := defaultTopSharers
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid top"})
			return
		}
		top = n
	}

	agg := stats.FromUsers(s.source.Users())
	s.writeJSON(w, http.StatusOK, struct {
		Stats       stats.Statistics `json:"stats"`
		TopSharers  []roster.User    `json:"top_sharers"`
		GeneratedAt time.Time        `json:"generated_at"`
	}{
		Stats:       agg.Stats(),
		TopSharers:  agg.TopSharers(top),
		GeneratedAt: time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
