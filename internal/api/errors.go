package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"uptimewatch/internal/auth"
	"uptimewatch/internal/checker"
	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
	"uptimewatch/internal/storage"
)

const (
	codeInvalidRequest = "invalid_request"
	codeValidation     = "validation"
	codeNotFound       = "not_found"
	codeDuplicate      = "duplicate"
	codeUnauthorized   = "unauthorized"
	codeUnknownCheck   = "unknown_check"
	codeInternal       = "internal"
)

// apiError is an error with a fixed HTTP rendering.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Code + ": " + e.Message }

func newError(status int, code, format string, args ...any) *apiError {
	return &apiError{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

type errorBody struct {
	Error *apiError `json:"error"`
}

// classify maps an error to its HTTP rendering. Unknown errors become 500.
func classify(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		switch {
		case he.Code == http.StatusNotFound:
			return newError(he.Code, codeNotFound, "%s", msg)
		case he.Code == http.StatusUnauthorized:
			return newError(he.Code, codeUnauthorized, "%s", msg)
		case he.Code < http.StatusInternalServerError:
			return newError(he.Code, codeInvalidRequest, "%s", msg)
		}
		return newError(he.Code, codeInternal, "internal server error")
	}

	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, storage.ErrInvalidOutcome):
		return newError(http.StatusBadRequest, codeValidation, "%s", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return newError(http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicateKey):
		return newError(http.StatusConflict, codeDuplicate, "already exists")
	case errors.Is(err, checker.ErrUnknownCheck):
		return newError(http.StatusConflict, codeUnknownCheck, "%s", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return newError(http.StatusUnauthorized, codeUnauthorized, "%s", err.Error())
	}
	return newError(http.StatusInternalServerError, codeInternal, "internal server error")
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ae := classify(err)
	if ae.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(ae.Status)
	} else {
		writeErr = c.JSON(ae.Status, errorBody{Error: ae})
	}
	if writeErr != nil {
		log.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
