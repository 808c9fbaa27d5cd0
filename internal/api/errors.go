package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solana-sos/emergency/domain"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrAlreadyActive, http.StatusConflict, "already_active"},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{domain.ErrContextBuild, http.StatusUnprocessableEntity, "context_build_failed"},
	{domain.ErrInvalidConfig, http.StatusUnprocessableEntity, "invalid_config"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrTransport, http.StatusBadGateway, "transport_failed"},
	{domain.ErrDevice, http.StatusBadGateway, "device_failed"},
	{domain.ErrInitialization, http.StatusServiceUnavailable, "initialization_failed"},
	{domain.ErrStorage, http.StatusServiceUnavailable, "storage_failed"},
}

// errorJSON maps domain errors onto HTTP responses
func errorJSON(c echo.Context, err error) error {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return c.JSON(e.status, ErrorResponse{Error: e.code, Message: err.Error()})
		}
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}
