// Package server implements the query-side read API (C9): a gin-based JSON
// HTTP surface over the cache and leaderboard engine.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"turboflakes/internal/cache"
	"turboflakes/internal/config"
	"turboflakes/internal/leaderboard"
)

// @title           turboflakes staking indexer API
// @version         1.0
// @description     Read-only query surface over a staking chain's validator/nominator/era cache.
// @BasePath        /
// @schemes         http https
// @produce         json
// @consumes        json

const requestTimeout = 10 * time.Second

// Server is the HTTP query surface.
type Server struct {
	config      *config.Config
	cache       *cache.Client
	leaderboard *leaderboard.Engine
	router      *gin.Engine
	httpServer  *http.Server
}

// NewServer builds a Server wired to the cache and leaderboard engine.
func NewServer(cfg *config.Config, c *cache.Client, lb *leaderboard.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.CORSAllowOrigin}
	if cfg.CORSAllowOrigin == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
	}
	router.Use(cors.New(corsConfig))

	s := &Server{
		config:      cfg,
		cache:       c,
		leaderboard: lb,
		router:      router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.metadataHandler)
	s.router.GET("/api/v1", s.metadataHandler)
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/era/:era_index", s.eraHandler)
		v1.GET("/validator", s.validatorsHandler)
		v1.GET("/validator/:stash", s.validatorHandler)
		v1.GET("/validator/:stash/eras", s.validatorErasHandler)
		v1.GET("/validator/:stash/rank", s.validatorRankHandler)
	}

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddress(),
		Handler: s.router,
	}

	slog.Info("starting HTTP server", "address", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// loggingMiddleware logs every request's method, path, status and latency.
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		slog.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

// healthHandler reports process liveness.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}
