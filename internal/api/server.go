package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"accesslynx/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *pterm.Logger
	port   int

	// Cancels request contexts so open streams end on shutdown
	cancel context.CancelFunc
}

// Config holds server configuration
type Config struct {
	Host       string
	Port       int
	Production bool
}

// NewServer creates a new HTTP server. accessLog wraps every route, including
// unmatched ones.
func NewServer(cfg *Config, accessLog gin.HandlerFunc, logsHandler *handlers.LogsHandler, streamHandler *handlers.StreamHandler, logger *pterm.Logger) *Server {
	router := NewRouter(cfg, accessLog, logsHandler, streamHandler, logger)

	baseCtx, cancel := context.WithCancel(context.Background())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		server: &http.Server{
			Addr:           addr,
			Handler:        router,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   0, // SSE streams stay open
			MaxHeaderBytes: 1 << 20,
			BaseContext: func(net.Listener) context.Context {
				return baseCtx
			},
		},
		logger: logger,
		port:   cfg.Port,
		cancel: cancel,
	}
}

// NewRouter wires middleware and routes
func NewRouter(cfg *Config, accessLog gin.HandlerFunc, logsHandler *handlers.LogsHandler, streamHandler *handlers.StreamHandler, logger *pterm.Logger) *gin.Engine {
	// Set Gin mode
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	if accessLog != nil {
		router.Use(accessLog)
	}
	router.Use(corsMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "AccessLynx - every request enriched and logged",
			"logs":    "/logs",
			"stream":  "/logs/stream",
			"health":  "/health",
		})
	})

	router.GET("/logs", logsHandler.GetLogs)
	router.GET("/logs/stream", streamHandler.StreamLogs)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
			"path":  c.Request.URL.Path,
		})
	})

	logger.Debug("Routes registered", logger.Args("count", len(router.Routes())))
	return router
}

// Handler exposes the router for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("Starting web server", s.logger.Args("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithCaller().Error("Web server failed", s.logger.Args("error", err))
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server...")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
