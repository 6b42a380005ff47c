package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"uptimewatch/internal/log"
)

func (s *Server) setupRoutes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("Request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if len(s.opts.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     s.opts.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowCredentials: true,
		}))
	}

	e.GET("/healthz", s.healthz)

	e.GET("/targets", s.listTargets)
	e.GET("/targets/:id", s.getTarget)
	e.POST("/targets", s.createTarget, s.requireAdmin)
	e.PUT("/targets/:id", s.updateTarget, s.requireAdmin)
	e.DELETE("/targets/:id", s.deleteTarget, s.requireAdmin)

	e.POST("/sweep", s.sweepAll, s.requireAdmin)
	e.POST("/sweep/:id", s.sweepOne, s.requireAdmin)
	e.POST("/alternate-check-result", s.recordAlternate, s.requireAdmin)

	e.GET("/archive/export", s.exportArchive, s.requireAdmin)
	e.GET("/archive", s.archiveStatus, s.requireAdminOrCron)
	e.POST("/archive", s.runArchive, s.requireAdminOrCron)

	e.GET("/cron", s.cron, s.requireCron)
	e.POST("/cron", s.cron, s.requireCron)

	e.POST("/auth/login", s.login)
	e.POST("/auth/logout", s.logout)
	e.GET("/auth/session", s.session)
}
