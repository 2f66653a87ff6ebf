// Package server exposes the household store over HTTP: accounts and
// sessions, generic table access for the board clients, a change stream
// and scheduled routine materialization.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store/sqlstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
)

// Options tunes the server
type Options struct {
	// MaterializeSpec is the cron schedule for filling the current week of
	// every board. Empty or "off" disables the job.
	MaterializeSpec string
	// SessionTTL is the lifetime of issued tokens
	SessionTTL time.Duration
	// Heartbeat is the keep-alive interval of change streams
	Heartbeat time.Duration
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		MaterializeSpec: "0 5 * * *",
		SessionTTL:      30 * 24 * time.Hour,
		Heartbeat:       15 * time.Second,
	}
}

// Server is the household API server
type Server struct {
	store *sqlstore.Store
	db    *sql.DB
	echo  *echo.Echo
	cron  *cron.Cron
	log   *logger.Logger
	opts  Options
	now   func() time.Time

	// done is closed on shutdown so open change streams return
	done chan struct{}
}

// New creates a server on an opened store
func New(st *sqlstore.Store, log *logger.Logger, opts Options) (*Server, error) {
	def := DefaultOptions()
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = def.SessionTTL
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = def.Heartbeat
	}

	s := &Server{
		store: st,
		db:    st.DB(),
		log:   log.WithFields(logger.F("component", "server")),
		opts:  opts,
		now:   time.Now,
		done:  make(chan struct{}),
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return nil, err
	}

	// Setup Echo
	s.setupEcho()

	if err := s.startScheduler(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Custom logging middleware
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			s.log.Debug("HTTP Request",
				logger.F("method", req.Method),
				logger.F("uri", req.RequestURI),
				logger.F("remote", req.RemoteAddr))

			err := next(c)

			res := c.Response()
			s.log.Info("HTTP Response",
				logger.F("method", req.Method),
				logger.F("uri", req.RequestURI),
				logger.F("status", res.Status),
				logger.F("size", res.Size),
				logger.F("duration", time.Since(start).String()))

			return err
		}
	})

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	// Health check
	e.GET("/health", s.handleHealth)

	// API v1
	api := e.Group("/api/v1")

	// Auth endpoints (public)
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)

	// Protected endpoints
	protected := api.Group("")
	protected.Use(s.authMiddleware)
	protected.GET("/me", s.handleMe)
	protected.POST("/logout", s.handleLogout)

	tables := protected.Group("/tables/:table")
	tables.GET("", s.handleSelect)
	tables.POST("", s.handleInsert)
	tables.PATCH("", s.handleUpdate)
	tables.DELETE("", s.handleDelete)
	tables.GET("/changes", s.handleChanges)

	s.echo = e
}

// Close stops the scheduler and ends open change streams. The store is
// owned by the caller.
func (s *Server) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	s.log.Info("server starting", logger.F("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown ends change streams and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		s.log.Warn("health check failed", logger.Err(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
