package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/profiles"
	"github.com/fyrsmithlabs/tenantrag/internal/rag"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidTenantKey),
		errors.Is(err, store.ErrInvalidArgument),
		errors.Is(err, chunk.ErrUnknownType),
		errors.Is(err, ingest.ErrUnsupportedFile),
		errors.Is(err, ingest.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, profiles.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrNoCompleter):
		return http.StatusNotImplemented
	case errors.Is(err, store.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrStorageUnavailable), errors.Is(err, registry.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError converts err to an echo.HTTPError. Internal errors are not
// echoed to the client.
func toHTTPError(err error) error {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal error").SetInternal(err)
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}
