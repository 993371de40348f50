package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/pkg/auth"
	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/s3config"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

// fail maps a core error to its JSON error response.
//
// The mapping never surfaces internal error types, and sandbox escapes are
// deliberately indistinguishable from plain not-found so probing requests
// learn nothing about the host tree.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return writeError(c, http.StatusUnauthorized, "Unauthorized.")

	case errors.Is(err, fspath.ErrNotFound),
		errors.Is(err, fspath.ErrEscape),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrEscape):
		return writeError(c, http.StatusNotFound, "Path not found.")

	case errors.Is(err, s3config.ErrNotFound):
		return writeError(c, http.StatusNotFound, "S3 configuration not found.")

	case errors.Is(err, store.ErrConflict):
		return writeError(c, http.StatusConflict, "Destination already exists.")

	case errors.Is(err, store.ErrParentMissing):
		return writeError(c, http.StatusConflict, "Original location no longer exists.")

	case errors.Is(err, store.ErrTooLarge):
		return writeError(c, http.StatusRequestEntityTooLarge, "File is too large.")

	case errors.Is(err, store.ErrIntoItself):
		return writeError(c, http.StatusBadRequest, "Cannot move or copy a folder into itself.")

	case errors.Is(err, store.ErrIsDirectory):
		return writeError(c, http.StatusBadRequest, "Operation not supported on folders.")

	case errors.Is(err, fspath.ErrInvalidPath), errors.Is(err, store.ErrInvalidPath):
		return writeError(c, http.StatusBadRequest, "Invalid path.")

	case errors.Is(err, store.ErrAtLimit):
		return writeError(c, http.StatusBadRequest, "Maximum number of S3 connections reached.")

	case errors.Is(err, store.ErrNotConnected):
		return writeError(c, http.StatusBadRequest, "Not connected to this S3 configuration.")
	}

	logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("Request failed")
	return writeError(c, http.StatusInternalServerError, "Internal server error.")
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

func badRequest(c echo.Context, message string) error {
	return writeError(c, http.StatusBadRequest, message)
}
