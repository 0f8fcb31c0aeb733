package admin

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/user"
)

// POST /api/admin/users/:tg_id/promote
func (h *Handler) PromoteUser(c echo.Context) error {
	return h.setRole(c, user.RoleAdmin)
}

// POST /api/admin/users/:tg_id/demote
func (h *Handler) DemoteUser(c echo.Context) error {
	return h.setRole(c, user.RoleUser)
}

func (h *Handler) setRole(c echo.Context, role string) error {
	tgID, err := strconv.ParseInt(c.Param("tg_id"), 10, 64)
	if err != nil || tgID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid tg id"})
	}
	if err := h.Users.SetRole(c.Request().Context(), tgID, role); err != nil {
		return h.fail(c, err)
	}
	h.Logger.Info("user role changed", "tg_id", tgID, "role", role)
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "tg_id": tgID, "role": role})
}
