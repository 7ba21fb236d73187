// Package api serves the HTTP control API: session status, recent engine
// events, device listings, stored profiles and live path controls.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/profiles"
	"github.com/syncwave/syncwave/internal/session"
)

// Server timeouts and limits.
const (
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 10 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 5 * time.Second
	BodyLimit       = "16K"
	MaxEvents       = 1000
)

// Controller is the session surface the API drives. *session.Controller
// implements it.
type Controller interface {
	Status() session.Status
	RecentEvents(n int) []session.EventRecord
	SetControl(path, control, value string) error
	Backend() device.Backend
}

// ProfileStore lists and removes stored device profiles.
type ProfileStore interface {
	List() ([]profiles.Profile, error)
	Delete(device string) error
}

// Server is the HTTP control API.
type Server struct {
	echo       *echo.Echo
	controller Controller
	profiles   ProfileStore
	metrics    *metrics.HTTPMetrics
	log        logger.Logger
	listen     string
	version    string
	startTime  time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithProfiles exposes stored device profiles.
func WithProfiles(store ProfileStore) ServerOption {
	return func(s *Server) {
		s.profiles = store
	}
}

// WithMetrics records request and control metrics.
func WithMetrics(m *metrics.HTTPMetrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New creates a server for controller listening on listen.
func New(listen string, controller Controller, opts ...ServerOption) *Server {
	s := &Server{
		controller: controller,
		listen:     listen,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	if s.metrics != nil {
		s.echo.Use(metricsMiddleware(s.metrics))
	}
	s.echo.Use(requestLogger(s.log))
	s.echo.Use(echomw.BodyLimit(BodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	g := s.echo.Group("/api/v1")
	g.GET("/status", s.getStatus)
	g.GET("/events", s.getEvents)
	g.GET("/devices", s.getDevices)
	g.GET("/paths/:path", s.getPath)
	g.PUT("/paths/:path/:control", s.putControl)
	g.GET("/profiles", s.getProfiles)
	g.DELETE("/profiles/:device", s.deleteProfile)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.echo,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control API listening", logger.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("stopping control API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("control API shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}
