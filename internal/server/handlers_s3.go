package server

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/pkg/archive"
	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
	s3store "github.com/sesukyothole/bro-file-manager/pkg/store/s3"
)

type s3ConnectRequest struct {
	ConfigID string `json:"configId"`
}

func (s *Server) handleS3Connect(c echo.Context) error {
	session := sessionFrom(c)

	var req s3ConnectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.ConfigID == "" {
		return badRequest(c, "ConfigId is required.")
	}

	if _, err := s.s3conns.Attach(c.Request().Context(), session.Nonce, req.ConfigID); err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, "s3_connect", map[string]any{
		"user":     session.User.Username,
		"configId": req.ConfigID,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "connected"})
}

func (s *Server) handleS3Disconnect(c echo.Context) error {
	session := sessionFrom(c)

	var req s3ConnectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	s.s3conns.Detach(session.Nonce, req.ConfigID)
	s.auditEvent(c, "s3_disconnect", map[string]any{
		"user":     session.User.Username,
		"configId": req.ConfigID,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleS3Connections(c echo.Context) error {
	session := sessionFrom(c)
	connected := s.s3conns.SessionConfigs(session.Nonce)

	profiles, err := s.s3configs.List()
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"connected":      connected,
		"configs":        profiles,
		"maxConnections": s.s3conns.MaxConnections(),
	})
}

// s3Adapter resolves the session's live adapter for the request's configId.
func (s *Server) s3Adapter(c echo.Context) (*s3store.Adapter, error) {
	configID := c.QueryParam("configId")
	if configID == "" {
		return nil, fmt.Errorf("configId is required: %w", store.ErrNotConnected)
	}
	return s.s3conns.Resolve(sessionFrom(c).Nonce, configID)
}

func (s *Server) handleS3List(c echo.Context) error {
	session := sessionFrom(c)
	adapter, err := s.s3Adapter(c)
	if err != nil {
		return fail(c, err)
	}

	virtualPath := queryPath(c)
	page, pageSize := paging(c)
	opts := store.ListOptions{}
	if pageSize > 0 {
		opts.Limit = pageSize
		opts.Offset = (page - 1) * pageSize
	}

	result, err := adapter.List(c.Request().Context(), virtualPath, opts)
	if err != nil {
		return fail(c, err)
	}

	normalized, err := fspath.Normalize(virtualPath)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, listResponse{
		Path:     normalized,
		Parent:   path.Dir(normalized),
		Entries:  result.Entries,
		Total:    result.Total,
		Page:     page,
		PageSize: pageSize,
		User:     session.User.Username,
		Role:     session.User.Role,
	})
}

func (s *Server) handleS3Download(c echo.Context) error {
	session := sessionFrom(c)
	adapter, err := s.s3Adapter(c)
	if err != nil {
		return fail(c, err)
	}

	virtualPath := queryPath(c)
	reader, size, err := adapter.OpenReader(c.Request().Context(), virtualPath)
	if err != nil {
		return fail(c, err)
	}
	defer reader.Close()

	name := path.Base(virtualPath)
	c.Response().Header().Set(echo.HeaderContentDisposition, archive.ContentDisposition(name))
	if size >= 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}

	s.auditEvent(c, "s3_download", map[string]any{
		"user": session.User.Username,
		"path": virtualPath,
	})
	return c.Stream(http.StatusOK, contentTypeFor(name), reader)
}

func (s *Server) handleS3Upload(c echo.Context) error {
	session := sessionFrom(c)
	adapter, err := s.s3Adapter(c)
	if err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()

	basePath := c.QueryParam("path")
	if basePath == "" {
		basePath = "/"
	}
	overwrite := c.QueryParam("overwrite") == "true"

	mr, err := c.Request().MultipartReader()
	if err != nil {
		return badRequest(c, "Multipart form expected.")
	}

	uploaded := []string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return badRequest(c, "Malformed multipart form.")
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		if err := fspath.CheckLeaf(part.FileName()); err != nil {
			part.Close()
			return fail(c, err)
		}
		target := path.Join(basePath, part.FileName())
		if !overwrite {
			exists, err := adapter.Exists(ctx, target)
			if err != nil {
				part.Close()
				return fail(c, err)
			}
			if exists {
				part.Close()
				return fail(c, fmt.Errorf("%s: %w", target, store.ErrConflict))
			}
		}
		if err := adapter.WriteStream(ctx, target, part); err != nil {
			part.Close()
			return fail(c, err)
		}
		uploaded = append(uploaded, target)
		part.Close()
	}

	if len(uploaded) == 0 {
		return badRequest(c, "No files in upload.")
	}

	s.auditEvent(c, "s3_upload", map[string]any{
		"user":  session.User.Username,
		"paths": uploaded,
	})
	return c.JSON(http.StatusOK, map[string]any{"uploaded": uploaded})
}

func (s *Server) handleS3Mkdir(c echo.Context) error {
	session := sessionFrom(c)
	adapter, err := s.s3Adapter(c)
	if err != nil {
		return fail(c, err)
	}

	var req mkdirRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.Path == "" || req.Name == "" {
		return badRequest(c, "Path and name are required.")
	}
	if err := fspath.CheckLeaf(req.Name); err != nil {
		return fail(c, err)
	}

	target := path.Join(req.Path, req.Name)
	if err := adapter.Mkdir(c.Request().Context(), target); err != nil {
		return fail(c, err)
	}
	s.auditEvent(c, "s3_mkdir", map[string]any{"user": session.User.Username, "path": target})
	return c.JSON(http.StatusOK, map[string]string{"path": target})
}

func (s *Server) handleS3Move(c echo.Context) error {
	return s.handleS3Transfer(c, "move")
}

func (s *Server) handleS3Copy(c echo.Context) error {
	return s.handleS3Transfer(c, "copy")
}

func (s *Server) handleS3Transfer(c echo.Context, action string) error {
	session := sessionFrom(c)
	adapter, err := s.s3Adapter(c)
	if err != nil {
		return fail(c, err)
	}

	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.From == "" || req.To == "" {
		return badRequest(c, "Both from and to are required.")
	}

	ctx := c.Request().Context()
	if action == "move" {
		err = adapter.Move(ctx, req.From, req.To)
	} else {
		err = adapter.Copy(ctx, req.From, req.To)
	}
	if err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, "s3_"+action, map[string]any{
		"user": session.User.Username,
		"from": req.From,
		"to":   req.To,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type s3DeleteRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleS3Delete(c echo.Context) error {
	session := sessionFrom(c)
	adapter, err := s.s3Adapter(c)
	if err != nil {
		return fail(c, err)
	}

	var req s3DeleteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.Path == "" {
		return badRequest(c, "Path is required.")
	}

	if err := adapter.Delete(c.Request().Context(), req.Path); err != nil {
		return fail(c, err)
	}
	s.auditEvent(c, "s3_delete", map[string]any{"user": session.User.Username, "path": req.Path})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
