package comet

import (
	"net/http"
	"time"

	"github.com/cometd/engine/internal/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Server is the primary interface to the comet extension: it owns a
// Registry and a Handler and implements http.Handler so it can be chained
// into an existing mux, mirroring the teacher's Server (server.go).
//
// Unlike the teacher, Server does not itself expose channel creation: per
// spec.md §1/§4.4, the Handler never creates channels. Application code
// creates channels directly against Server.Registry.
type Server struct {
	Registry *Registry
	Metrics  *Metrics

	Options Options

	handler     *Handler
	startupTime time.Time
}

// Options holds high-level toggles that don't belong in the spec's own
// Config (spec.md §6), matching the teacher's admin-gating option
// (admin/admin.go's Options.DisableAdminEndpoints).
type Options struct {
	// DisableAdminEndpoints, if true, makes the admin HTTP surface
	// (SPEC_FULL.md §4.6) respond 403 instead of serving status.
	DisableAdminEndpoints bool
}

// ServerOption configures a Server at construction time.
type ServerOption func(s *Server) error

// WithPrometheusRegisterer registers comet's metrics against reg instead of
// the default of not registering them anywhere.
func WithPrometheusRegisterer(reg prometheus.Registerer) ServerOption {
	return func(s *Server) error {
		s.Metrics = NewMetrics(reg)
		return nil
	}
}

// WithLogger attaches a logger used for channel and request lifecycle
// tracing.
func WithLogger(l log.Logger) ServerOption {
	return func(s *Server) error {
		s.handler.Log = l
		s.Registry.log = l
		return nil
	}
}

// WithDisabledAdmin disables the admin HTTP surface.
func WithDisabledAdmin() ServerOption {
	return func(s *Server) error {
		s.Options.DisableAdminEndpoints = true
		return nil
	}
}

// NewServer creates a Server for the given Config (spec.md §6), applying
// any ServerOptions.
//
// The registry's owning goroutine is not started until every option has
// run, so options that swap in a different Metrics or Logger (e.g.
// WithPrometheusRegisterer, WithLogger) never race its select loop.
func NewServer(cfg Config, opts ...ServerOption) (*Server, error) {
	metrics := NewMetrics(nil)
	reg := newRegistry(cfg)
	reg.metrics = metrics
	handler := NewHandler(reg, cfg, metrics, log.Discard())

	s := &Server{
		Registry:    reg,
		Metrics:     metrics,
		handler:     handler,
		startupTime: time.Now(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	// an option may have swapped in a fresh Metrics (WithPrometheusRegisterer);
	// make sure the registry and handler agree on which one is live.
	s.Registry.metrics = s.Metrics
	s.handler.Metrics = s.Metrics

	s.Registry.Start()
	return s, nil
}

// ServeHTTP implements http.Handler, dispatching per spec.md §4.4's
// content-type rule. Requests it does not own fall through to a 404,
// matching the teacher's mux-based dispatch (server.go); a host composing
// several extensions should call Handles directly instead of relying on
// this fallback.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.handler.Handles(r) {
		http.NotFound(w, r)
		return
	}
	s.handler.ServeHTTP(w, r)
}

// Shutdown stops the Server's registry goroutine.
//
// Currently, this returns immediately, and does not wait for in-flight
// wait-phase requests to finish (matching the teacher's own documented
// Shutdown contract in server.go).
func (s *Server) Shutdown() {
	s.Registry.Shutdown()
}

// Status is a point-in-time snapshot of comet-wide counters, served at
// /admin/status.json (SPEC_FULL.md §4.6).
type Status struct {
	Status       string `json:"status"`
	Reported     int64  `json:"reported_at"`
	StartupTime  int64  `json:"startup_time"`
	LiveChannels int    `json:"live_channels"`
	Waiters      int64  `json:"waiters"`
	Delivered    uint64 `json:"events_delivered"`
}

// Status returns a snapshot of status metadata for the Server, primarily
// intended for logging and reporting.
func (s *Server) Status() Status {
	rs := s.Registry.Status()
	return Status{
		Status:       "OK",
		Reported:     time.Now().Unix(),
		StartupTime:  s.startupTime.Unix(),
		LiveChannels: rs.LiveChannels,
		Waiters:      rs.Waiters,
		Delivered:    s.Metrics.DeliveredCount(),
	}
}
