package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/pkg/s3config"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
	s3store "github.com/sesukyothole/bro-file-manager/pkg/store/s3"
)

func (s *Server) handleS3ConfigList(c echo.Context) error {
	profiles, err := s.s3configs.List()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"configs": profiles})
}

// handleS3ConfigGet returns the full profile, secret included: the settings
// UI needs it to round-trip an edit. The route is admin-only.
func (s *Server) handleS3ConfigGet(c echo.Context) error {
	profile, err := s.s3configs.GetByID(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleS3ConfigCreate(c echo.Context) error {
	var profile s3config.Profile
	if err := c.Bind(&profile); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	created, err := s.s3configs.Create(profile)
	if err != nil {
		return badRequest(c, "Invalid S3 configuration.")
	}

	s.auditEvent(c, "s3_config_create", map[string]any{
		"user": sessionFrom(c).User.Username,
		"id":   created.ID,
		"name": created.Name,
	})
	return c.JSON(http.StatusCreated, created.Redacted())
}

func (s *Server) handleS3ConfigUpdate(c echo.Context) error {
	var profile s3config.Profile
	if err := c.Bind(&profile); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	updated, err := s.s3configs.Update(c.Param("id"), profile)
	if err != nil {
		return fail(c, err)
	}

	s.auditEvent(c, "s3_config_update", map[string]any{
		"user": sessionFrom(c).User.Username,
		"id":   updated.ID,
	})
	return c.JSON(http.StatusOK, updated.Redacted())
}

// handleS3ConfigDelete removes the profile and severs every live
// connection bound to it, whichever session holds it.
func (s *Server) handleS3ConfigDelete(c echo.Context) error {
	id := c.Param("id")
	if err := s.s3configs.Delete(id); err != nil {
		return fail(c, err)
	}
	s.s3conns.OnProfileDeleted(id)

	s.auditEvent(c, "s3_config_delete", map[string]any{
		"user": sessionFrom(c).User.Username,
		"id":   id,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleS3ConfigTest probes the profile with a one-key listing.
func (s *Server) handleS3ConfigTest(c echo.Context) error {
	profile, err := s.s3configs.GetByID(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	client, err := s3store.NewClient(ctx, s3store.ClientConfig{
		Region:          profile.Region,
		Endpoint:        profile.Endpoint,
		AccessKeyID:     profile.AccessKeyID,
		SecretAccessKey: profile.SecretAccessKey,
	})
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "error": "Could not build S3 client."})
	}

	adapter := s3store.NewAdapter(client, profile.Bucket, profile.Prefix, profile.ID)
	if _, err := adapter.List(ctx, "/", store.ListOptions{Limit: 1}); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "error": "Bucket listing failed."})
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
