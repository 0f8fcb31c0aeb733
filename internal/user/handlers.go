package user

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/apperr"
)

// Handler serves the current user's account.
type Handler struct {
	Users Store
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// GET /api/me
func (h *Handler) Me(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "unauthorized"})
	}

	u, err := h.Users.GetUser(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "failed to load user"})
	}

	// role on the token wins: admins from the whitelist are not stored as such
	if role, _ := c.Get("role").(string); role != "" {
		u.Role = role
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "user": u})
}

// PATCH /api/me
func (h *Handler) UpdateProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "unauthorized"})
	}

	req := new(UpdateProfileRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid request"})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len([]rune(name)) > 120 {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "name must be 1-120 characters"})
	}

	if err := h.Users.UpdateName(c.Request().Context(), userID, name); err != nil {
		return c.JSON(apperr.Status(err), echo.Map{"ok": false, "error": apperr.Message(err)})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "message": "Profile updated successfully"})
}
