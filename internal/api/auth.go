package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"uptimewatch/internal/auth"
)

const adminContextKey = "admin"

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// sessionUser returns the admin of a valid session cookie or bearer token.
func (s *Server) sessionUser(c echo.Context) (string, bool) {
	sessions := s.deps.Auth.Sessions()
	if cookie, err := c.Cookie(auth.CookieName); err == nil && cookie.Value != "" {
		if claims, err := sessions.Verify(cookie.Value); err == nil {
			return claims.Username, true
		}
	}
	if token := bearerToken(c); token != "" {
		if claims, err := sessions.Verify(token); err == nil {
			return claims.Username, true
		}
	}
	return "", false
}

func (s *Server) isCron(c echo.Context) bool {
	token := bearerToken(c)
	if s.opts.CronSecret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.CronSecret)) == 1
}

func unauthorized() error {
	return newError(http.StatusUnauthorized, codeUnauthorized, "authentication required")
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := s.sessionUser(c)
		if !ok {
			return unauthorized()
		}
		c.Set(adminContextKey, user)
		return next(c)
	}
}

func (s *Server) requireCron(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.isCron(c) {
			return unauthorized()
		}
		return next(c)
	}
}

func (s *Server) requireAdminOrCron(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.isCron(c) {
			return next(c)
		}
		user, ok := s.sessionUser(c)
		if !ok {
			return unauthorized()
		}
		c.Set(adminContextKey, user)
		return next(c)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	Username      string     `json:"username,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) sessionCookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		Secure:   s.opts.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	token, expires, err := s.deps.Auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	c.SetCookie(s.sessionCookie(token, int(s.deps.Auth.Sessions().TTL().Seconds()), expires))
	return c.JSON(http.StatusOK, sessionResponse{
		Authenticated: true,
		Username:      auth.NormalizeUsername(req.Username),
		ExpiresAt:     &expires,
	})
}

func (s *Server) logout(c echo.Context) error {
	c.SetCookie(s.sessionCookie("", -1, time.Unix(0, 0)))
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: false})
}

func (s *Server) session(c echo.Context) error {
	user, ok := s.sessionUser(c)
	if !ok {
		return c.JSON(http.StatusOK, sessionResponse{Authenticated: false})
	}
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, Username: user})
}
