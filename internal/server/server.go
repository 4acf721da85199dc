// Package server provides the HTTP server implementation for the table gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/devrev/tablegateway/internal/config"
	apierrors "github.com/devrev/tablegateway/internal/errors"
	"github.com/devrev/tablegateway/internal/handler"
	"github.com/devrev/tablegateway/internal/health"
	"github.com/devrev/tablegateway/internal/metrics"
	"github.com/devrev/tablegateway/internal/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TableService is everything the server needs from the service layer.
type TableService interface {
	handler.TableService
	health.Pinger
}

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	handler      http.Handler
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
	healthActive atomic.Bool
}

// NewServer creates a new HTTP server. m may be nil to disable HTTP metrics.
func NewServer(cfg *config.Config, svc TableService, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(svc, errorHandler, logger.Named("handler"), cfg.Server.RequestTimeout)

	var recorder health.StatusRecorder
	if m != nil {
		recorder = m
	}
	healthCheck := health.NewHealthCheck(svc, cfg.Health, logger, recorder)

	s := &Server{
		router:       router,
		handler:      router,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS(s.cfg.Server.AllowedOrigins),
	}

	if s.cfg.RateLimiter.Enabled {
		var recorder middleware.LimitRecorder
		if s.metrics != nil {
			recorder = s.metrics
		}
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
			recorder,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	// The chain wraps the router so unmatched requests are logged too. Route
	// metrics need the matched route and run inside the router.
	s.handler = middleware.Chain(middlewareChain...)(s.router)
	if s.metrics != nil {
		s.router.Use(metrics.MetricsMiddleware(s.metrics))
	}

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	api := s.router
	if prefix := s.cfg.Server.APIPrefix; prefix != "" && prefix != "/" {
		api = s.router.PathPrefix(prefix).Subrouter()
	}

	api.HandleFunc("/check-connection", s.handlers.CheckConnection).Methods(http.MethodGet)

	api.HandleFunc("/{base}/{table}", s.handlers.ListRecords).Methods(http.MethodGet)
	api.HandleFunc("/{base}/{table}", s.handlers.CreateRecord).Methods(http.MethodPost)
	api.HandleFunc("/{base}/{table}/{id}", s.handlers.GetRecord).Methods(http.MethodGet)
	api.HandleFunc("/{base}/{table}/{id}", s.handlers.UpdateRecord).Methods(http.MethodPatch)
	api.HandleFunc("/{base}/{table}/{id}", s.handlers.DeleteRecord).Methods(http.MethodDelete)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, "endpoint not found")
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Start starts the readiness probe and then serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.healthActive.CompareAndSwap(false, true) {
		s.healthCheck.Start(ctx)
	}

	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
		zap.String("api_prefix", s.cfg.Server.APIPrefix),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server and the readiness probe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	if s.healthActive.CompareAndSwap(true, false) {
		s.healthCheck.Stop()
	}
	return err
}

// GetHandler returns the http.Handler for the server, middleware included.
func (s *Server) GetHandler() http.Handler {
	return s.handler
}

// HealthCheck returns the readiness probe.
func (s *Server) HealthCheck() *health.HealthCheck {
	return s.healthCheck
}
