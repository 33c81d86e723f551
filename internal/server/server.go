// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/auth"
	"github.com/vyrodovalexey/storefront-state/internal/config"
	"github.com/vyrodovalexey/storefront-state/internal/handler"
	"github.com/vyrodovalexey/storefront-state/internal/middleware"
	"github.com/vyrodovalexey/storefront-state/internal/shopper"
)

// APIPrefix is the path prefix of the shopper API.
const APIPrefix = middleware.APIPrefix

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Shoppers handler.Shoppers
	Catalog  handler.Catalog
	Events   handler.Subscriber

	// Authenticator guards the API. Nil disables authentication.
	Authenticator auth.Authenticator

	// Ready reports whether backing services are reachable.
	Ready func(ctx context.Context) error
}

// Server represents the HTTP server.
type Server struct {
	httpServer    *http.Server
	router        *mux.Router
	config        *config.Config
	logger        *zap.Logger
	authenticator auth.Authenticator
	wsHandler     *handler.WebSocketHandler
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:        router,
		config:        cfg,
		logger:        logger,
		authenticator: deps.Authenticator,
	}

	s.setupMiddleware()
	s.setupRoutes(deps)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	allowedOrigins := s.config.CORSAllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		"Authorization",
		"X-API-Key",
		middleware.RequestIDHeader,
		middleware.ClientIDHeader,
		handler.AntiAbuseTokenHeader,
	}

	// Apply middleware in order (first applied = outermost)
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CORS(allowedOrigins, allowedMethods, allowedHeaders)))

	if s.authenticator != nil {
		s.router.Use(mux.MiddlewareFunc(middleware.Auth(s.authenticator, s.logger)))
	}
}

// setupRoutes configures the probe, API and WebSocket routes.
func (s *Server) setupRoutes(deps Deps) {
	restHandler := handler.NewRESTHandler(deps.Shoppers, deps.Catalog, s.logger,
		handler.WithRecaptchaSiteKey(s.config.RecaptchaSiteKey),
		handler.WithReadinessCheck(deps.Ready),
	)
	restHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix(APIPrefix).Subrouter()
	api.Use(mux.MiddlewareFunc(middleware.ClientID(shopper.ValidateClientID)))
	restHandler.RegisterAPIRoutes(api)

	s.wsHandler = handler.NewWebSocketHandler(deps.Events, deps.Shoppers, s.logger)
	s.wsHandler.RegisterRoutes(api)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.String("auth_mode", s.config.AuthMode),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}
