package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"uptimewatch/internal/models"
	"uptimewatch/internal/registry"
)

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, newError(http.StatusBadRequest, codeInvalidRequest, "invalid id %q", c.Param("id"))
	}
	return id, nil
}

func bindJSON(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return newError(http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	return nil
}

func (s *Server) listTargets(c echo.Context) error {
	targets, err := s.deps.Registry.List(c.Request().Context(), c.QueryParam("environment"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, targets)
}

func (s *Server) getTarget(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	status, err := s.deps.Registry.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

type createTargetResponse struct {
	Target *models.Target      `json:"target"`
	Check  *models.SweepResult `json:"check,omitempty"`
}

func (s *Server) createTarget(c echo.Context) error {
	var in registry.TargetInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	target, check, err := s.deps.Registry.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createTargetResponse{Target: target, Check: check})
}

func (s *Server) updateTarget(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in registry.TargetInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	target, err := s.deps.Registry.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, target)
}

func (s *Server) deleteTarget(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := s.deps.Registry.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "message": "target deleted"})
}

func (s *Server) sweepAll(c echo.Context) error {
	results, err := s.deps.Sweeper.SweepAll(context.WithoutCancel(c.Request().Context()))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.Summarize(results))
}

func (s *Server) sweepOne(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	result, err := s.deps.Sweeper.SweepOne(context.WithoutCancel(c.Request().Context()), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) recordAlternate(c echo.Context) error {
	var res models.AlternateCheckResult
	if err := bindJSON(c, &res); err != nil {
		return err
	}
	outcome, err := s.deps.Coordinator.RecordAlternate(c.Request().Context(), res)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, outcome)
}
