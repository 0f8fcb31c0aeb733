package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/user"
)

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return RequireRoles(user.RoleAdmin)(next)
}
