// Package api exposes the status API over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"uptimewatch/internal/archive"
	"uptimewatch/internal/auth"
	"uptimewatch/internal/checker"
	"uptimewatch/internal/log"
	"uptimewatch/internal/registry"
)

// Deps are the components the handlers compose.
type Deps struct {
	Registry    *registry.Registry
	Sweeper     *checker.Sweeper
	Coordinator *checker.Coordinator
	Archiver    *archive.Archiver
	Auth        *auth.Authenticator
}

// Options tune the HTTP surface.
type Options struct {
	CronSecret    string
	SecureCookies bool
	CORSOrigins   []string

	// The cron endpoint archives only within ArchiveWindow of
	// ArchiveHour:ArchiveMinute in ScheduleLocation.
	ArchiveHour      int
	ArchiveMinute    int
	ArchiveWindow    time.Duration
	ScheduleLocation *time.Location

	Clock func() time.Time
}

// Server wraps the echo instance to provide graceful shutdown.
type Server struct {
	echo *echo.Echo
	deps Deps
	opts Options
}

// NewServer creates and configures a new API server.
func NewServer(deps Deps, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ScheduleLocation == nil {
		opts.ScheduleLocation = time.UTC
	}
	s := &Server{echo: echo.New(), deps: deps, opts: opts}
	s.setupRoutes()
	if opts.CronSecret == "" {
		log.Warn().Msg("CRON_SECRET is not set, cron endpoints will reject every request")
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server...")
	return s.echo.Shutdown(ctx)
}
