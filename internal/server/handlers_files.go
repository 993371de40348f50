package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/pkg/archive"
	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

type listResponse struct {
	Path     string        `json:"path"`
	Parent   string        `json:"parent"`
	Entries  []store.Entry `json:"entries"`
	Total    int           `json:"total"`
	Page     int           `json:"page,omitempty"`
	PageSize int           `json:"pageSize,omitempty"`
	User     string        `json:"user"`
	Role     string        `json:"role"`
}

func (s *Server) handleList(c echo.Context) error {
	session := sessionFrom(c)
	virtualPath := queryPath(c)

	page, pageSize := paging(c)
	opts := store.ListOptions{}
	if pageSize > 0 {
		opts.Limit = pageSize
		opts.Offset = (page - 1) * pageSize
	}

	result, err := s.localAdapter(c).List(c.Request().Context(), virtualPath, opts)
	if err != nil {
		return fail(c, err)
	}

	normalized, err := fspath.Normalize(virtualPath)
	if err != nil {
		return fail(c, err)
	}
	s.auditEvent(c, "list", map[string]any{"user": session.User.Username, "path": normalized})

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

func (s *Server) handleDownload(c echo.Context) error {
	session := sessionFrom(c)
	virtualPath := queryPath(c)

	reader, size, err := s.localAdapter(c).OpenReader(c.Request().Context(), virtualPath)
	if err != nil {
		return fail(c, err)
	}
	defer reader.Close()

	name := path.Base(virtualPath)
	c.Response().Header().Set(echo.HeaderContentDisposition, archive.ContentDisposition(name))
	if size >= 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}

	s.auditEvent(c, "download", map[string]any{"user": session.User.Username, "path": virtualPath})
	return c.Stream(http.StatusOK, contentTypeFor(name), reader)
}

func (s *Server) handlePreview(c echo.Context) error {
	virtualPath := queryPath(c)
	name := path.Base(virtualPath)
	if !isPreviewable(name) {
		return badRequest(c, "File type cannot be previewed.")
	}

	data, err := s.readCapped(c, virtualPath, previewMaxBytes)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"path":    virtualPath,
		"content": string(data),
		"size":    len(data),
	})
}

func (s *Server) handleImage(c echo.Context) error {
	virtualPath := queryPath(c)
	name := path.Base(virtualPath)
	if !isImage(name) {
		return badRequest(c, "Not an image.")
	}

	reader, size, err := s.localAdapter(c).OpenReader(c.Request().Context(), virtualPath)
	if err != nil {
		return fail(c, err)
	}
	defer reader.Close()

	if size >= 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}
	return c.Stream(http.StatusOK, contentTypeFor(name), reader)
}

func (s *Server) handleEditGet(c echo.Context) error {
	virtualPath := queryPath(c)
	if !isEditable(path.Base(virtualPath)) {
		return badRequest(c, "File type cannot be edited.")
	}

	data, err := s.readCapped(c, virtualPath, editMaxBytes)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"path": virtualPath, "content": string(data)})
}

type editRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleEditPut(c echo.Context) error {
	session := sessionFrom(c)

	var req editRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.Path == "" {
		return badRequest(c, "Path is required.")
	}
	if !isEditable(path.Base(req.Path)) {
		return badRequest(c, "File type cannot be edited.")
	}
	if len(req.Content) > editMaxBytes {
		return fail(c, fmt.Errorf("%d bytes: %w", len(req.Content), store.ErrTooLarge))
	}

	if err := s.localAdapter(c).Write(c.Request().Context(), req.Path, []byte(req.Content)); err != nil {
		return fail(c, err)
	}
	s.auditEvent(c, "edit", map[string]any{"user": session.User.Username, "path": req.Path})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload streams multipart file parts straight to disk. The overwrite
// flag must arrive before the file parts in the form.
func (s *Server) handleUpload(c echo.Context) error {
	session := sessionFrom(c)
	adapter := s.localAdapter(c)
	ctx := c.Request().Context()

	basePath := c.QueryParam("path")
	if basePath == "" {
		basePath = "/"
	}
	overwrite := false

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

		switch {
		case part.FormName() == "path" && part.FileName() == "":
			data, err := io.ReadAll(io.LimitReader(part, 4096))
			if err == nil && len(data) > 0 {
				basePath = string(data)
			}
		case part.FormName() == "overwrite" && part.FileName() == "":
			data, _ := io.ReadAll(io.LimitReader(part, 16))
			overwrite = string(data) == "true" || string(data) == "1"
		case part.FileName() != "":
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
			if _, err := adapter.WriteStream(ctx, target, part); err != nil {
				part.Close()
				return fail(c, err)
			}
			uploaded = append(uploaded, target)
		}
		part.Close()
	}

	if len(uploaded) == 0 {
		return badRequest(c, "No files in upload.")
	}

	s.auditEvent(c, "upload", map[string]any{
		"user":  session.User.Username,
		"paths": uploaded,
	})
	return c.JSON(http.StatusOK, map[string]any{"uploaded": uploaded})
}

type mkdirRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func (s *Server) handleMkdir(c echo.Context) error {
	session := sessionFrom(c)

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
	if err := s.localAdapter(c).Mkdir(c.Request().Context(), target); err != nil {
		return fail(c, err)
	}
	s.auditEvent(c, "mkdir", map[string]any{"user": session.User.Username, "path": target})
	return c.JSON(http.StatusOK, map[string]string{"path": target})
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleMove(c echo.Context) error {
	return s.handleTransfer(c, "move")
}

func (s *Server) handleCopy(c echo.Context) error {
	return s.handleTransfer(c, "copy")
}

func (s *Server) handleTransfer(c echo.Context, action string) error {
	session := sessionFrom(c)

	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.From == "" || req.To == "" {
		return badRequest(c, "Both from and to are required.")
	}

	adapter := s.localAdapter(c)
	ctx := c.Request().Context()

	var err error
	if action == "move" {
		err = adapter.Move(ctx, req.From, req.To)
	} else {
		err = adapter.Copy(ctx, req.From, req.To)
	}
	if err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, action, map[string]any{
		"user": session.User.Username,
		"from": req.From,
		"to":   req.To,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// readCapped stats first so oversized files are rejected before their
// content is pulled into memory.
func (s *Server) readCapped(c echo.Context, virtualPath string, maxBytes int64) ([]byte, error) {
	adapter := s.localAdapter(c)
	ctx := c.Request().Context()

	entry, err := adapter.Stat(ctx, virtualPath)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%s: %w", virtualPath, store.ErrNotFound)
	}
	if entry.Type == store.EntryTypeDir {
		return nil, fmt.Errorf("%s: %w", virtualPath, store.ErrIsDirectory)
	}
	if entry.Size > maxBytes {
		return nil, fmt.Errorf("%s is %d bytes: %w", virtualPath, entry.Size, store.ErrTooLarge)
	}
	return adapter.Read(ctx, virtualPath)
}

func queryPath(c echo.Context) string {
	p := c.QueryParam("path")
	if p == "" {
		return "/"
	}
	return p
}

func paging(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	pageSize, _ = strconv.Atoi(c.QueryParam("pageSize"))
	if page < 1 {
		page = 1
	}
	if pageSize < 0 {
		pageSize = 0
	}
	return page, pageSize
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return echo.MIMEOctetStream
}
