// Package middleware holds the echo middleware shared by every route group.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/auth"
)

// Authenticate resolves the caller and stores user_id, tg_id and role in
// the echo context. Requests without a valid credential get 401.
func Authenticate(authn auth.Authenticator, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := authn.Authenticate(c.Request())
			if err != nil {
				if !errors.Is(err, auth.ErrNoCredential) {
					logger.Debug("authentication failed", "err", err, "path", c.Path())
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "unauthorized"})
			}
			c.Set("user_id", id.UserID)
			c.Set("tg_id", id.ExternalID)
			c.Set("role", id.Role)
			return next(c)
		}
	}
}
