package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/errandhub/internal/admin"
	"github.com/sudo-init-do/errandhub/internal/auth"
	mware "github.com/sudo-init-do/errandhub/internal/middleware"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router wires.
type Deps struct {
	Verticals  []*Vertical
	Admin      *admin.Handler
	AdminLogin *auth.AdminLogin
	Users      user.Store
	Store      Pinger
	Authn      auth.Authenticator
	Logger     *slog.Logger
}

// NewRouter builds the echo instance with every route mounted.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			d.Logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	authenticated := mware.Authenticate(d.Authn, d.Logger)

	if d.AdminLogin != nil {
		// per-IP rate limiting to slow down password guessing
		e.POST("/api/admin/login", d.AdminLogin.Login,
			middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	}

	if d.Admin != nil {
		adminGroup := e.Group("/api/admin", authenticated, mware.AdminGuard)
		d.Admin.Register(adminGroup)
	}

	api := e.Group("/api", authenticated)
	me := &user.Handler{Users: d.Users}
	api.GET("/me", me.Me)
	api.PATCH("/me", me.UpdateProfile)

	for _, v := range d.Verticals {
		v.Register(api.Group("/" + v.Engine.Descriptor().Name))
	}
	return e
}
