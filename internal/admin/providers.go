// Package admin serves moderation and statistics to administrators.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/realtime"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Handler holds what the admin routes need. Gates are keyed by domain.
type Handler struct {
	Gates    map[string]*eligibility.Gate
	Requests lifecycle.Store
	Users    user.Store
	Broker   *realtime.Broker
	Logger   *slog.Logger
}

// Register mounts the admin routes on g, which must already be guarded.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/stats", h.Stats)
	g.POST("/users/:tg_id/promote", h.PromoteUser)
	g.POST("/users/:tg_id/demote", h.DemoteUser)

	g.GET("/:domain/pending", h.ListPending)
	g.POST("/:domain/providers/:user_id/approve", h.moderate(func(ctx context.Context, g *eligibility.Gate, id string) (any, error) {
		return g.Approve(ctx, id)
	}))
	g.POST("/:domain/providers/:user_id/reject", h.moderate(func(ctx context.Context, g *eligibility.Gate, id string) (any, error) {
		return g.Reject(ctx, id)
	}))
	g.POST("/:domain/providers/:user_id/verify_resource", h.moderate(func(ctx context.Context, g *eligibility.Gate, id string) (any, error) {
		return g.VerifyResource(ctx, id)
	}))
	g.POST("/:domain/providers/:user_id/unverify_resource", h.moderate(func(ctx context.Context, g *eligibility.Gate, id string) (any, error) {
		return g.UnverifyResource(ctx, id)
	}))
	g.POST("/:domain/providers/:user_id/approve_all", h.moderate(func(ctx context.Context, g *eligibility.Gate, id string) (any, error) {
		return g.ApproveAll(ctx, id)
	}))
}

func (h *Handler) gate(c echo.Context) (*eligibility.Gate, bool) {
	g, ok := h.Gates[c.Param("domain")]
	return g, ok
}

// GET /api/admin/:domain/pending
func (h *Handler) ListPending(c echo.Context) error {
	g, ok := h.gate(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "unknown domain"})
	}
	pending, err := g.ListPending(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	if pending == nil {
		pending = []eligibility.Pending{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "pending": pending})
}

// moderate wraps one gate operation as a handler.
func (h *Handler) moderate(op func(ctx context.Context, g *eligibility.Gate, userID string) (any, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		g, ok := h.gate(c)
		if !ok {
			return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "unknown domain"})
		}
		userID := c.Param("user_id")
		result, err := op(c.Request().Context(), g, userID)
		if err != nil {
			return h.fail(c, err)
		}
		actor, _ := c.Get("user_id").(string)
		h.Logger.Info("admin moderation", "domain", g.Domain(), "user_id", userID, "path", c.Path(), "admin", actor)
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "result": result})
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("admin request failed", "path", c.Path(), "err", err)
	}
	return c.JSON(status, echo.Map{"ok": false, "error": apperr.Message(err)})
}
