package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/metrics"
	"github.com/JakeFAU/readingprogress/internal/policy/ratelimit"
	"github.com/JakeFAU/readingprogress/internal/viewport"
)

const requestTimeout = 10 * time.Second

// Tracking is the session the server reports on. widget.Widget satisfies it.
type Tracking interface {
	Session() uuid.UUID
	State() viewport.ViewportState
	Containers() []viewport.TrackedContainer
	Reset() int
	Remove(id viewport.ContainerID) bool
	Clear()
}

// Server wires HTTP handlers to the tracking session.
type Server struct {
	router   chi.Router
	tracking Tracking
	logger   *zap.Logger
	metrics  *metrics.HTTP
	rescans  *ratelimit.Limiter
	viewport Viewport
}

// Option customizes a Server.
type Option func(*Server)

// WithHTTPMetrics records request counts and latencies on m.
func WithHTTPMetrics(m *metrics.HTTP) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRescanLimiter rejects rescans beyond l's budget per client with 429.
func WithRescanLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.rescans = l }
}

// NewServer constructs a Server with middleware and routes. A nil gatherer
// serves the default Prometheus registry; a nil broadcaster disables the
// stream route.
func NewServer(
	tracking Tracking,
	broadcaster *Broadcaster,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{tracking: tracking, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Get("/state", s.getState)
			r.Route("/containers", func(r chi.Router) {
				r.Get("/", s.listContainers)
				r.Delete("/", s.clearContainers)
				r.Post("/rescan", s.rescan)
				r.Delete("/{container_id}", s.removeContainer)
			})
			if s.viewport != nil {
				r.Put("/viewport", s.resizeViewport)
				r.Post("/viewport/scroll", s.scrollViewport)
			}
		})
		if broadcaster != nil {
			r.Get("/stream", broadcaster.ServeHTTP)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	Session uuid.UUID              `json:"session"`
	State   viewport.ViewportState `json:"state"`
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Session: s.tracking.Session(),
		State:   s.tracking.State(),
	})
}

func (s *Server) listContainers(w http.ResponseWriter, _ *http.Request) {
	containers := s.tracking.Containers()
	if containers == nil {
		containers = []viewport.TrackedContainer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"containers": containers})
}

func (s *Server) rescan(w http.ResponseWriter, r *http.Request) {
	if s.rescans != nil && !s.rescans.Allow(clientKey(r)) {
		if s.metrics != nil {
			s.metrics.ObserveRateLimited("/v1/containers/rescan")
		}
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rescan rate limit exceeded")
		return
	}
	n := s.tracking.Reset()
	writeJSON(w, http.StatusOK, map[string]int{"containers": n})
}

func (s *Server) removeContainer(w http.ResponseWriter, r *http.Request) {
	id := viewport.ContainerID(chi.URLParam(r, "container_id"))
	if !s.tracking.Remove(id) {
		writeError(w, http.StatusNotFound, "container not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearContainers(w http.ResponseWriter, _ *http.Request) {
	s.tracking.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// clientKey identifies the caller by remote host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
