package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleSearch(c echo.Context) error {
	session := sessionFrom(c)

	query := c.QueryParam("query")
	if query == "" {
		return badRequest(c, "Query is required.")
	}
	virtualPath := queryPath(c)

	hits, err := s.localAdapter(c).Search(c.Request().Context(), virtualPath, query, s.cfg.Search.MaxBytes)
	if err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, "search", map[string]any{
		"user":  session.User.Username,
		"path":  virtualPath,
		"query": query,
	})
	return c.JSON(http.StatusOK, map[string]any{"results": hits, "total": len(hits)})
}
