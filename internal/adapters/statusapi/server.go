// Package statusapi exposes a read-only HTTP view of the running engine.
package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"levelBot/internal/domain"
	"levelBot/internal/ports"

	"github.com/gin-gonic/gin"
)

// SnapshotSource returns the latest published engine state.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config holds configuration for the status server.
type Config struct {
	Addr    string
	Symbol  string
	Source  SnapshotSource
	Metrics http.Handler // optional, mounted on /metrics
	Checks  map[string]HealthCheck
	Logger  ports.Logger
}

// Server represents the status HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config
	startedAt  time.Time
}

// New builds the router. It does not listen until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Source == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("snapshot source and logger are required: %w", ports.ErrConfigurationError)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{router: gin.New(), cfg: cfg, startedAt: time.Now()}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/snapshot", s.handleSnapshot)
	s.router.GET("/position", s.handlePosition)
	if s.cfg.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.cfg.Logger.Info(context.Background(), "Starting status server", map[string]interface{}{"addr": s.cfg.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		s.cfg.Logger.Info(ctx, "Shutting down status server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.cfg.Checks))
	healthy := true
	for name, check := range s.cfg.Checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy"
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	snap := s.cfg.Source.Snapshot()
	body := gin.H{
		"symbol":   s.cfg.Symbol,
		"checks":   checks,
		"disabled": snap.Disabled,
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
	}
	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Source.Snapshot())
}

func (s *Server) handlePosition(c *gin.Context) {
	snap := s.cfg.Source.Snapshot()
	if !snap.Position.IsOpen() {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "no open position"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"position":          snap.Position,
		"averageEntryPrice": snap.Position.AverageEntryPrice(),
	})
}
