// Package server is the HTTP layer: routing, session middleware, role
// enforcement, and the JSON handlers over the storage adapters.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/internal/ratelimiter"
	"github.com/sesukyothole/bro-file-manager/pkg/archive"
	"github.com/sesukyothole/bro-file-manager/pkg/audit"
	"github.com/sesukyothole/bro-file-manager/pkg/auth"
	"github.com/sesukyothole/bro-file-manager/pkg/config"
	"github.com/sesukyothole/bro-file-manager/pkg/metrics"
	"github.com/sesukyothole/bro-file-manager/pkg/s3config"
	"github.com/sesukyothole/bro-file-manager/pkg/s3conn"
	"github.com/sesukyothole/bro-file-manager/pkg/store/local"
)

// Server wires the HTTP surface over the core services.
type Server struct {
	cfg       *config.Config
	echo      *echo.Echo
	authority *auth.Authority
	users     *auth.Registry
	audit     *audit.Sink
	s3configs *s3config.Store
	s3conns   *s3conn.Registry

	// loginLimiter throttles credential guessing per client address.
	loginLimiter *ratelimiter.PerKey

	httpMetrics metrics.HTTPMetrics
}

// New assembles the server. The caller owns the audit sink's lifetime.
func New(cfg *config.Config, authority *auth.Authority, users *auth.Registry,
	sink *audit.Sink, s3configs *s3config.Store, s3conns *s3conn.Registry) *Server {
	s := &Server{
		cfg:       cfg,
		echo:      echo.New(),
		authority: authority,
		users:     users,
		audit:     sink,
		s3configs: s3configs,
		s3conns:   s3conns,

		loginLimiter: ratelimiter.NewPerKey(1, 10),
		httpMetrics:  metrics.NewHTTPMetrics(),
	}
	s.setupRoutes()
	return s
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start(addr string) error {
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting file manager server")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Shutdown()
}

// Shutdown stops the listener within the configured timeout.
func (s *Server) Shutdown() error {
	logger.Info().Msg("Shutting down server...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
		return err
	}
	logger.Info().Msg("Server gracefully stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.recordMetrics)

	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := s.echo.Group("/api")

	api.POST("/login", s.handleLogin)
	api.POST("/logout", s.handleLogout, s.requireSession)

	files := api.Group("/files", s.requireSession)
	files.GET("/list", s.handleList)
	files.GET("/download", s.handleDownload)
	files.GET("/preview", s.handlePreview)
	files.GET("/image", s.handleImage)
	files.GET("/edit", s.handleEditGet)
	files.POST("/edit", s.handleEditPut, s.requireWrite)
	files.POST("/upload", s.handleUpload, s.requireWrite)
	files.POST("/mkdir", s.handleMkdir, s.requireWrite)
	files.POST("/move", s.handleMove, s.requireWrite)
	files.POST("/copy", s.handleCopy, s.requireWrite)
	files.GET("/search", s.handleSearch)

	trash := api.Group("/trash", s.requireSession)
	trash.GET("", s.handleTrashList)
	trash.POST("", s.handleTrash, s.requireWrite)
	trash.POST("/restore", s.handleTrashRestore, s.requireWrite)

	api.GET("/archive", s.handleArchive, s.requireSession)

	s3admin := api.Group("/s3/configs", s.requireSession, s.requireAdmin)
	s3admin.GET("", s.handleS3ConfigList)
	s3admin.POST("", s.handleS3ConfigCreate)
	s3admin.GET("/:id", s.handleS3ConfigGet)
	s3admin.PUT("/:id", s.handleS3ConfigUpdate)
	s3admin.DELETE("/:id", s.handleS3ConfigDelete)
	s3admin.POST("/:id/test", s.handleS3ConfigTest)

	s3session := api.Group("/s3", s.requireSession)
	s3session.POST("/connect", s.handleS3Connect)
	s3session.POST("/disconnect", s.handleS3Disconnect)
	s3session.GET("/connections", s.handleS3Connections)

	s3files := api.Group("/s3/files", s.requireSession)
	s3files.GET("/list", s.handleS3List)
	s3files.GET("/download", s.handleS3Download)
	s3files.POST("/upload", s.handleS3Upload, s.requireWrite)
	s3files.POST("/mkdir", s.handleS3Mkdir, s.requireWrite)
	s3files.POST("/move", s.handleS3Move, s.requireWrite)
	s3files.POST("/copy", s.handleS3Copy, s.requireWrite)
	s3files.POST("/delete", s.handleS3Delete, s.requireWrite)
}

// localAdapter builds the filesystem adapter scoped to the session's user.
func (s *Server) localAdapter(c echo.Context) *local.Adapter {
	return local.New(sessionFrom(c).User.RootReal)
}

// streamer builds an archive streamer over the session's local adapter.
func (s *Server) streamer(adapter *local.Adapter) *archive.Streamer {
	return archive.NewStreamer(adapter, s.cfg.Archive.LargeBytes())
}
