package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// Request errors
var (
	ErrInvalidCampaignID = errors.New("invalid campaign id")
	ErrNoResults         = errors.New("no results yet, request a decryption first")
	ErrMissingPermission = errors.New("missing permission")
)

// statusOf maps client errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCampaignID):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoResults), errors.Is(err, clienterrors.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingPermission), errors.Is(err, clienterrors.ErrUnauthorized):
		return http.StatusForbidden
	case clienterrors.IsRevert(err):
		return http.StatusUnprocessableEntity
	case clienterrors.IsLedgerError(err), clienterrors.IsBackendError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, err error) error {
	return c.JSON(statusOf(err), ErrorResponse{
		Error: err.Error(),
		Code:  clienterrors.GetErrorCode(err),
	})
}
