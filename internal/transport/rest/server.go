// Package rest serves the HTTP API, the realtime websocket and, optionally,
// the MCP endpoint.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/teamboard/internal/realtime"
	"github.com/mschirtzinger/teamboard/internal/service"
)

// Config holds server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// MCP is mounted at MCPPath when set.
	MCP     http.Handler
	MCPPath string

	Version string
	Logger  *slog.Logger
}

// Server is the teamboard HTTP server.
type Server struct {
	app    *service.App
	hub    *realtime.Hub
	config Config
	logger *slog.Logger
	router *gin.Engine

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds the router. hub may be nil, which disables /ws.
func NewServer(app *service.App, hub *realtime.Hub, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.MCPPath == "" {
		cfg.MCPPath = "/mcp"
	}
	s := &Server{
		app:    app,
		hub:    hub,
		config: cfg,
		logger: cfg.Logger.With("component", "rest"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(s.logger), Recovery(s.logger), CORS(s.config.CORSOrigins), UserID())

	r.GET("/health", s.handleHealth)
	if s.hub != nil {
		r.GET("/ws", gin.WrapH(s.hub))
	}
	if s.config.MCP != nil {
		r.Any(s.config.MCPPath, gin.WrapH(s.config.MCP))
	}

	api := r.Group("/api")
	{
		s.registerCollections(api)
		api.GET("/audit-logs", s.handleAudit)
		api.GET("/export", s.handleExport)
	}
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}
