package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type trashRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleTrash(c echo.Context) error {
	session := sessionFrom(c)

	var req trashRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.Path == "" {
		return badRequest(c, "Path is required.")
	}

	record, err := s.localAdapter(c).Trash(c.Request().Context(), req.Path)
	if err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, "trash", map[string]any{
		"user": session.User.Username,
		"path": req.Path,
		"id":   record.ID,
	})
	return c.JSON(http.StatusOK, record)
}

func (s *Server) handleTrashList(c echo.Context) error {
	records, err := s.localAdapter(c).ListTrash(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": records})
}

type restoreRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleTrashRestore(c echo.Context) error {
	session := sessionFrom(c)

	var req restoreRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.ID == "" {
		return badRequest(c, "Id is required.")
	}

	record, err := s.localAdapter(c).Restore(c.Request().Context(), req.ID)
	if err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, "restore", map[string]any{
		"user": session.User.Username,
		"id":   req.ID,
		"path": record.OriginalPath,
	})
	return c.JSON(http.StatusOK, record)
}
