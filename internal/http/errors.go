package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// unprocessable are validation failures of well-formed requests.
var unprocessable = []error{
	ragerr.ErrTextTooShort,
	ragerr.ErrQueryTooShort,
	ragerr.ErrNoFragmentsProduced,
	ragerr.ErrNoValidFragments,
	ragerr.ErrExtractionFailed,
	ragerr.ErrUnsupportedFormat,
}

// StatusOf maps an error to an HTTP status code by its ragerr kind.
func StatusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}

	switch ragerr.KindOf(err) {
	case ragerr.KindValidation:
		for _, target := range unprocessable {
			if errors.Is(err, target) {
				return http.StatusUnprocessableEntity
			}
		}
		return http.StatusBadRequest
	case ragerr.KindNotFound:
		return http.StatusNotFound
	case ragerr.KindUnauthenticated:
		return http.StatusUnauthorized
	case ragerr.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	case ragerr.KindConfiguration:
		return http.StatusInternalServerError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleError writes {"error": ...}. Errors outside the taxonomy are logged
// and answered with a generic message.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := StatusOf(err)
	msg := err.Error()

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	case ragerr.KindOf(err) == ragerr.KindUnknown || status == http.StatusInternalServerError:
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		msg = "internal error"
	case status == http.StatusServiceUnavailable:
		s.logger.Warn(c.Request().Context(), "dependency unavailable", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "writing error response failed", zap.Error(err))
	}
}
