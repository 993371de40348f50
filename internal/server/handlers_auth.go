package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/pkg/audit"
	"github.com/sesukyothole/bro-file-manager/pkg/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin authenticates and sets the session cookie.
//
// Unknown users and wrong passwords produce the same response; the audit
// log keeps the distinction.
func (s *Server) handleLogin(c echo.Context) error {
	if !s.loginLimiter.Allow(c.RealIP()) {
		s.auditEvent(c, "login_failed", map[string]any{"reason": "rate_limited"})
		return writeError(c, http.StatusTooManyRequests, "Too many attempts, try again later.")
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "Username and password are required.")
	}

	user := s.users.Lookup(req.Username)
	if user == nil {
		s.auditEvent(c, "login_failed", map[string]any{
			"user":   req.Username,
			"reason": "user_not_found",
		})
		return writeError(c, http.StatusUnauthorized, "Invalid credentials.")
	}
	if !auth.VerifyPassword(user, req.Password) {
		s.auditEvent(c, "login_failed", map[string]any{
			"user":   req.Username,
			"reason": "bad_password",
		})
		return writeError(c, http.StatusUnauthorized, "Invalid credentials.")
	}

	token, err := s.authority.Issue(user)
	if err != nil {
		return fail(c, err)
	}
	s.setSessionCookie(c, token)
	s.auditEvent(c, "login", map[string]any{"user": user.Username})

	return c.JSON(http.StatusOK, map[string]any{
		"user": user.Username,
		"role": user.Role,
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	session := sessionFrom(c)
	s.s3conns.Detach(session.Nonce, "")
	s.clearSessionCookie(c)
	s.auditEvent(c, "logout", map[string]any{"user": session.User.Username})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// auditEvent records an event, tagging it with the client IP. Audit
// failures are logged but never fail the request.
func (s *Server) auditEvent(c echo.Context, action string, fields map[string]any) {
	if err := s.audit.Record(audit.Event{
		Action: action,
		IP:     c.RealIP(),
		Fields: fields,
	}); err != nil {
		logger.Warn().Err(err).Str("action", action).Msg("Audit append failed")
	}
}
