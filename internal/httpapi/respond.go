// Package httpapi exposes the verticals over echo.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// caller builds the acting party from what the auth middleware stored.
func caller(c echo.Context) (lifecycle.Party, bool) {
	userID, _ := c.Get("user_id").(string)
	tgID, _ := c.Get("tg_id").(int64)
	return lifecycle.Party{UserID: userID, ExternalID: tgID}, userID != ""
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": msg})
}

// respondError maps an engine or gate error onto the JSON error body.
func respondError(c echo.Context, logger *slog.Logger, err error) error {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	return c.JSON(status, echo.Map{"ok": false, "error": apperr.Message(err)})
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
