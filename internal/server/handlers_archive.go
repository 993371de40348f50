package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/pkg/archive"
)

// handleArchive streams a zip or tar.gz of one or more paths.
//
// Every requested path is resolved (and so proven inside the caller's root)
// before the first byte of the archive is written. Errors after streaming
// has begun can only truncate the body; they are logged and never retried.
func (s *Server) handleArchive(c echo.Context) error {
	session := sessionFrom(c)
	adapter := s.localAdapter(c)

	paths := c.QueryParams()["path"]
	if len(paths) == 0 {
		return badRequest(c, "At least one path is required.")
	}

	formatParam := c.QueryParam("format")
	if formatParam == "" {
		formatParam = "zip"
	}
	format, err := archive.ParseFormat(formatParam)
	if err != nil {
		return badRequest(c, "Unknown archive format.")
	}

	hostPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		hostPath, err := adapter.HostPath(p)
		if err != nil {
			return fail(c, err)
		}
		hostPaths = append(hostPaths, hostPath)
	}

	filename := archive.Name(paths, format, time.Now())
	contentType := "application/zip"
	if format == archive.FormatTarGz {
		contentType = "application/gzip"
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().Header().Set(echo.HeaderContentDisposition, archive.ContentDisposition(filename))
	c.Response().WriteHeader(http.StatusOK)

	s.auditEvent(c, "archive", map[string]any{
		"user":   session.User.Username,
		"paths":  paths,
		"format": string(format),
	})

	if err := s.streamer(adapter).Stream(c.Request().Context(), c.Response(), format, hostPaths); err != nil {
		// Headers are gone; the truncated body is the error signal.
		logger.Error().Err(err).Str("user", session.User.Username).Msg("Archive stream failed")
	}
	return nil
}
