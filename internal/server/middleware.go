package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/pkg/auth"
)

const (
	sessionCookieName = "session"
	sessionContextKey = "fm.session"
)

// sessionFrom returns the verified session stored by requireSession.
func sessionFrom(c echo.Context) *auth.Session {
	session, _ := c.Get(sessionContextKey).(*auth.Session)
	return session
}

// requireSession verifies the session cookie and handles rotation.
//
// When the remaining lifetime has dropped to or below the rotation threshold, a
// freshly issued token rides along on the response; the old token stays
// valid until its natural expiry.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			return writeError(c, http.StatusUnauthorized, "Unauthorized.")
		}

		session, err := s.authority.Verify(cookie.Value)
		if err != nil {
			return writeError(c, http.StatusUnauthorized, "Unauthorized.")
		}
		c.Set(sessionContextKey, session)

		if s.authority.ShouldRotate(session) {
			if fresh, err := s.authority.Issue(session.User); err == nil {
				s.setSessionCookie(c, fresh)
			} else {
				logger.Warn().Err(err).Msg("Session rotation failed")
			}
		}

		return next(c)
	}
}

// requireWrite blocks mutating operations for read-only roles.
func (s *Server) requireWrite(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !sessionFrom(c).User.CanWrite() {
			return writeError(c, http.StatusForbidden, "Forbidden.")
		}
		return next(c)
	}
}

// requireAdmin restricts a route to administrators.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !sessionFrom(c).User.IsAdmin() {
			return writeError(c, http.StatusForbidden, "Forbidden.")
		}
		return next(c)
	}
}

// recordMetrics observes every finished request, labeled by the matched
// route rather than the raw URI so path parameters do not explode the
// label space.
func (s *Server) recordMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.httpMetrics.ObserveRequest(
			c.Request().Method,
			c.Path(),
			c.Response().Status,
			time.Since(start),
		)
		return err
	}
}

func (s *Server) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.authority.TTL()),
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
