// Package server provides the HTTP server for the voice agent.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/config"
	apierrors "github.com/devrev/hvac-voice-agent/internal/errors"
	"github.com/devrev/hvac-voice-agent/internal/handler"
	"github.com/devrev/hvac-voice-agent/internal/health"
	"github.com/devrev/hvac-voice-agent/internal/metrics"
	"github.com/devrev/hvac-voice-agent/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	metrics      *metrics.Metrics
	errorHandler *apierrors.Handler
	// apology is the TwiML served when a webhook handler panics.
	apology string
	logger  *zap.Logger
	cfg     *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	healthCheck *health.HealthCheck,
	m *metrics.Metrics,
	errorHandler *apierrors.Handler,
	apology string,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		metrics:      m,
		errorHandler: errorHandler,
		apology:      apology,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	}
	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.MetricsMiddleware(s.metrics))
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// Twilio webhooks
	voice := s.router.PathPrefix("/voice").Subrouter()
	voice.Use(middleware.TwiMLRecovery(s.logger, s.apology))
	if s.cfg.Twilio.ValidateSignatures {
		voice.Use(middleware.TwilioSignature(s.cfg.Twilio.AuthToken, s.cfg.Twilio.PublicBaseURL, s.logger))
	}
	voice.HandleFunc("/incoming", s.handlers.Incoming).Methods(http.MethodPost)
	voice.HandleFunc("/gather", s.handlers.Gather).Methods(http.MethodPost)
	voice.HandleFunc("/status", s.handlers.Status).Methods(http.MethodPost)

	// Synthesized prompts fetched by Twilio's <Play>
	s.router.HandleFunc("/audio/{key:[0-9a-f]+}.mp3", s.handlers.Audio).Methods(http.MethodGet)

	// Admin API
	// Only the admin API is rate limited: a 429 to Twilio would play its
	// own error message to the caller.
	v1 := s.router.PathPrefix("/v1").Subrouter()
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		v1.Use(rateLimiter.Limit)
	}
	v1.Use(middleware.CORS(s.cfg.Server.AllowedOrigins))
	if s.cfg.Server.WriteTimeout > 0 {
		v1.Use(middleware.Timeout(s.cfg.Server.WriteTimeout))
	}
	if s.cfg.Auth.Enabled {
		v1.Use(middleware.JWTAuth(s.cfg.Auth.JWTSecret, s.cfg.Auth.Issuer, s.logger))
	}
	v1.HandleFunc("/calls", s.handlers.ListCalls).Methods(http.MethodGet)
	v1.HandleFunc("/calls/{sid}", s.handlers.GetCall).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sid}", s.handlers.GetSession).Methods(http.MethodGet)
	v1.HandleFunc("/appointments", s.handlers.ListAppointments).Methods(http.MethodGet)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}
