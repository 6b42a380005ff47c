package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"uptimewatch/internal/archive"
	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
)

func (s *Server) archiveStatus(c echo.Context) error {
	status, err := s.deps.Archiver.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) runArchive(c echo.Context) error {
	result, err := s.deps.Archiver.ArchiveOldEntries(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) exportArchive(c echo.Context) error {
	text, n, err := s.deps.Archiver.Export(c.Request().Context())
	if err != nil {
		return err
	}
	if n == 0 {
		return newError(http.StatusNotFound, codeNotFound, "no archived records to export")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+s.deps.Archiver.ExportFilename()+`"`)
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// cron sweeps every target and, inside the archive window or when forced
// with archive=force, runs an archival pass. The two steps fail
// independently. Both run to completion even if the caller disconnects.
func (s *Server) cron(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	now := s.opts.Clock()
	resp := models.CronReport{
		Timestamp: now.UTC(),
		LocalTime: now.In(s.opts.ScheduleLocation).Format("2006-01-02 15:04:05 MST"),
	}

	results, err := s.deps.Sweeper.SweepAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Cron sweep failed")
		resp.SweepError = err.Error()
	} else {
		summary := models.Summarize(results)
		resp.Sweep = &summary
	}

	resp.ArchiveScheduled = c.QueryParam("archive") == "force" ||
		archive.IsScheduledTime(now, s.opts.ScheduleLocation, s.opts.ArchiveHour, s.opts.ArchiveMinute, s.opts.ArchiveWindow)
	if resp.ArchiveScheduled {
		result, err := s.deps.Archiver.ArchiveOldEntries(ctx)
		if err != nil {
			log.Error().Err(err).Int("archived", result.Archived).Msg("Cron archival failed")
			resp.ArchiveError = err.Error()
		}
		resp.Archive = &result
	}

	resp.Success = resp.SweepError == "" && resp.ArchiveError == ""
	status := http.StatusOK
	if resp.SweepError != "" {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, resp)
}
