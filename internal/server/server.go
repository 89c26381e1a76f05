// Package server exposes the engine's health, status and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/engine"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// StatusSource is the read-only engine surface the server reports on
type StatusSource interface {
	Status() []engine.SiteStatus
	Stats() models.MonitorStats
	Excluded() []engine.Exclusion
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Stats         models.MonitorStats `json:"stats"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	SuccessRate   float64             `json:"success_rate"`
	Sites         []engine.SiteStatus `json:"sites"`
	Excluded      []engine.Exclusion  `json:"excluded"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves /healthz, /status, /status/{site} and /metrics
type Server struct {
	cfg     config.ServerConfig
	source  StatusSource
	metrics http.Handler
	router  chi.Router
	logger  zerolog.Logger
	now     func() time.Time

	httpServer *http.Server
	listener   net.Listener
	done       chan error
}

// New builds the router. metricsHandler may be nil, in which case /metrics is not mounted.
func New(cfg config.ServerConfig, source StatusSource, metricsHandler http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		source:  source,
		metrics: metricsHandler,
		logger:  logger.With().Str("component", "StatusServer").Logger(),
		now:     time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/status/{site}", s.handleSiteStatus)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Handler returns the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return common.WrapErrorf(err, "failed to listen on '%s'", s.cfg.ListenAddr)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.done = make(chan error, 1)

	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Status server started")
	return nil
}

// Addr returns the bound address, or "" before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for active requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return common.WrapError(err, "failed to shut down status server")
	}
	if err := <-s.done; err != nil {
		return common.WrapError(err, "status server stopped with error")
	}
	s.logger.Info().Msg("Status server stopped")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": s.source.Stats().Uptime(s.now()).Seconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := s.source.Stats()
	sites := s.source.Status()
	if sites == nil {
		sites = []engine.SiteStatus{}
	}
	excluded := s.source.Excluded()
	if excluded == nil {
		excluded = []engine.Exclusion{}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Stats:         stats,
		UptimeSeconds: stats.Uptime(s.now()).Seconds(),
		SuccessRate:   stats.SuccessRate(),
		Sites:         sites,
		Excluded:      excluded,
	})
}

func (s *Server) handleSiteStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "site")
	for _, site := range s.source.Status() {
		if site.Name == name {
			writeJSON(w, http.StatusOK, site)
			return
		}
	}
	for _, ex := range s.source.Excluded() {
		if ex.Site == name {
			writeJSON(w, http.StatusConflict, errorResponse{Error: ex.Reason})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "site '" + name + "' not found"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
