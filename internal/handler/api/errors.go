package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"SaxoBridge/internal/domain/models"
	xhttp "SaxoBridge/pkg/http"
)

// appError maps a domain error onto its HTTP form.
func appError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrAuthFailed):
		return xhttp.UnauthorizedError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return xhttp.UpstreamError(err.Error()).WithError(err)
	}
	return xhttp.InternalError("Something went wrong").WithError(err)
}

func errorResponse(c echo.Context, err error) error {
	return xhttp.AppErrorResponse(c, appError(err))
}
