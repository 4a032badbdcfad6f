package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/server/handler"
	"github.com/Otaku-Wars/clashcore/internal/server/middleware"
	"github.com/Otaku-Wars/clashcore/internal/server/ws"
)

// rateLimitPerSecond caps requests per client IP across all routes.
const rateLimitPerSecond = 20

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Characters *handler.CharacterHandler
	Battle     *handler.BattleHandler
	Users      *handler.UserHandler
	Activity   *handler.ActivityHandler
	Trades     *handler.TradeHandler
}

// Server is the HTTP + WebSocket API for arena state and trade submission.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, rate limiting, CORS, auth) and attaches
// the WebSocket hub. limiter may be nil when Redis is not configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Character endpoints.
	mux.HandleFunc("GET /api/characters", handlers.Characters.List)
	mux.HandleFunc("GET /api/characters/{id}", handlers.Characters.Get)
	mux.HandleFunc("GET /api/characters/{id}/quote", handlers.Characters.Quote)

	// Battle endpoints.
	mux.HandleFunc("GET /api/battle", handlers.Battle.Get)
	mux.HandleFunc("GET /api/battle/projection", handlers.Battle.Projection)

	// User portfolio endpoint.
	mux.HandleFunc("GET /api/users/{address}", handlers.Users.Get)

	// Activity stream endpoint.
	mux.HandleFunc("GET /api/activity", handlers.Activity.List)

	// Trade submission endpoints (reject when no wallet is configured).
	if handlers.Trades != nil {
		mux.HandleFunc("POST /api/trade", handlers.Trades.Trade)
		mux.HandleFunc("POST /api/stake", handlers.Trades.Stake)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-IP rate limiting when a limiter backend is available.
	if limiter != nil {
		h = middleware.RateLimit(limiter, rateLimitPerSecond, time.Second)(h)
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
