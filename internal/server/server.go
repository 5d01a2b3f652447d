// Package server exposes the analysis agent over HTTP: the analyze API,
// read-only tool and run history endpoints, health and metrics, and a
// WebSocket stream of run events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/config"
	"github.com/swetaais/analysis-agent/internal/models"
	"github.com/swetaais/analysis-agent/pkg/types"
)

// Pipeline is the coordinator surface the HTTP layer depends on.
type Pipeline interface {
	Analyze(ctx context.Context, req *types.AnalyzeRequest) (*types.AnalyzeResponse, error)
	Tools(ctx context.Context) ([]models.ToolDescriptor, error)
	Run(ctx context.Context, id string) (*models.RunRecord, error)
	Runs(ctx context.Context, limit, offset int) ([]*models.RunRecord, error)
}

// Server is the HTTP front of the agent.
type Server struct {
	cfg      *config.Config
	pipeline Pipeline
	log      audit.Logger
	hub      *Hub
	http     *http.Server
}

// New builds the server and its router.
func New(cfg *config.Config, pipeline Pipeline, log audit.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		log:      log,
		hub:      NewHub(cfg.Server.AllowedOrigins, log),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the run event hub so the pipeline can publish to it.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.correlate)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/tools", s.handleTools)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/stream", s.hub.handleStream)
	})
	return r
}

// correlate threads the request id into the audit context.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(audit.WithCorrelationID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.log.Log(context.Background(), audit.NewEvent(audit.EventServerStarted).
		WithDescription(s.http.Addr).WithResult(audit.ResultSuccess))
	s.log.App().Info("http server listening", zap.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the stream hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Log(ctx, audit.NewEvent(audit.EventServerShutdown).WithResult(audit.ResultSuccess))
	s.hub.Close()
	return s.http.Shutdown(ctx)
}
