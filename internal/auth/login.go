package auth

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/errandhub/internal/user"
)

// AdminUserID is the subject of tokens issued by the password login.
const AdminUserID = "admin"

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
}

// AdminLogin exchanges the admin password for an admin token.
type AdminLogin struct {
	PasswordHash string
	Tokens       *JWTAuthenticator
	Logger       *slog.Logger
}

// POST /api/admin/login
func (h *AdminLogin) Login(c echo.Context) error {
	if h.PasswordHash == "" {
		return c.JSON(http.StatusForbidden, echo.Map{"ok": false, "error": "password login disabled"})
	}

	req := new(LoginRequest)
	if err := c.Bind(req); err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid request"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(req.Password)); err != nil {
		h.Logger.Warn("admin login failed", "remote_ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "invalid credentials"})
	}

	signed, err := h.Tokens.Issue(Identity{UserID: AdminUserID, Role: user.RoleAdmin})
	if err != nil {
		h.Logger.Error("admin token", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, LoginResponse{OK: true, Token: signed})
}
