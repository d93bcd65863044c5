// Package server exposes the marketplace over HTTP and WebSocket: agent and
// item registration, listing status, the decision log, and a live decision
// stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/server/handler"
	"github.com/avencia/agentmarket/internal/server/middleware"
	"github.com/avencia/agentmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIToken    string // if empty, authentication is disabled

	// RateLimiter throttles requests per client IP when set. Nil disables
	// rate limiting (dev mode).
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Agents    *handler.AgentHandler
	Items     *handler.ItemHandler
	Listings  *handler.ListingHandler
	Decisions *handler.DecisionHandler
}

// Server is the headless HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required once auth is disabled; otherwise the
	// token applies to everything under the chain).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Agent endpoints.
	mux.HandleFunc("POST /api/agents", handlers.Agents.CreateAgent)
	mux.HandleFunc("GET /api/agents", handlers.Agents.ListAgents)
	mux.HandleFunc("GET /api/agents/{id}", handlers.Agents.GetAgent)
	mux.HandleFunc("GET /api/agents/{id}/balance", handlers.Agents.GetAgentBalance)

	// Item endpoints. Items live under /api/agents/items because sellers
	// register them through the same surface the agents are managed on.
	mux.HandleFunc("POST /api/agents/items", handlers.Items.CreateItem)
	mux.HandleFunc("GET /api/agents/items", handlers.Items.ListItems)
	mux.HandleFunc("GET /api/agents/items/{id}", handlers.Items.GetItem)
	mux.HandleFunc("DELETE /api/agents/items/{id}", handlers.Items.DeleteItem)

	// Listing contract endpoints.
	mux.HandleFunc("GET /api/items/{id}/listing", handlers.Listings.GetListing)
	mux.HandleFunc("POST /api/items/{id}/listing/close", handlers.Listings.CloseListing)

	// Decision log endpoints.
	mux.HandleFunc("GET /api/decisions", handlers.Decisions.ListDecisions)
	mux.HandleFunc("GET /api/decisions/{id}", handlers.Decisions.GetDecision)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIToken is empty).
	h = middleware.Auth(cfg.APIToken)(h)

	// Apply per-client rate limiting when a limiter is configured.
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
