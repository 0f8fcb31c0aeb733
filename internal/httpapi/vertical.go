package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/realtime"
	"github.com/sudo-init-do/errandhub/internal/user"
)

// Vertical serves one domain: its provider onboarding, its requests and
// its event streams.
type Vertical struct {
	Engine *lifecycle.Engine
	Gate   *eligibility.Gate
	Users  user.Store
	Broker *realtime.Broker
	Logger *slog.Logger
}

// Register mounts the vertical's routes on g, which must already be
// authenticated.
func (v *Vertical) Register(g *echo.Group) {
	g.GET("/provider/me", v.ProviderState)
	g.POST("/provider/profile", v.SubmitProfile)
	if v.Gate.RequiresResource() {
		g.POST("/provider/resource", v.UpsertResource)
	}
	g.POST("/provider/active", v.SetActive)

	g.POST("/requests", v.CreateRequest)
	g.GET("/requests", v.ListRequests)
	g.GET("/requests/:id", v.GetRequest)
	g.GET("/requests/:id/bids", v.ListBids)
	g.POST("/requests/:id/bids", v.PlaceBid)
	g.POST("/bids/:id/accept", v.AcceptBid)
	g.POST("/requests/:id/claim", v.ClaimFixed)
	g.POST("/requests/:id/status", v.AdvanceStatus)
	g.POST("/requests/:id/cancel", v.Cancel)
	g.GET("/requests/:id/provider", v.AssignedProvider)

	domain := v.Engine.Descriptor().Name
	g.GET("/stream", realtime.SSEHandler(v.Broker, domain))
	g.GET("/ws", realtime.WSHandler(v.Broker, domain))
}

// GET /api/:domain/provider/me
func (v *Vertical) ProviderState(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	st, err := v.Gate.State(c.Request().Context(), p.UserID)
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "provider": st})
}

// POST /api/:domain/provider/profile
func (v *Vertical) SubmitProfile(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	body := new(ProfileBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c, "invalid request")
	}
	profile, err := v.Gate.SubmitProfile(c.Request().Context(), p.UserID, body.input())
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "profile": profile})
}

// POST /api/:domain/provider/resource
func (v *Vertical) UpsertResource(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	body := new(ResourceBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c, "invalid request")
	}
	r, err := v.Gate.UpsertResource(c.Request().Context(), p.UserID, body.input())
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "resource": r})
}

// POST /api/:domain/provider/active
func (v *Vertical) SetActive(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	body := new(ActiveBody)
	if err := c.Bind(body); err != nil || body.Active == nil {
		return badRequest(c, "active must be true or false")
	}
	profile, err := v.Gate.SetActive(c.Request().Context(), p.UserID, *body.Active)
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "profile": profile})
}

// POST /api/:domain/requests
func (v *Vertical) CreateRequest(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	body := new(CreateRequestBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c, "invalid request")
	}
	in, msg := body.input()
	if msg != "" {
		return badRequest(c, msg)
	}
	r, err := v.Engine.CreateRequest(c.Request().Context(), p, in)
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "request": r})
}

// GET /api/:domain/requests?role=requester|provider|feed&scope=active|history|all&limit=
func (v *Vertical) ListRequests(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	limit := parseLimit(c.QueryParam("limit"))

	scope := lifecycle.Scope(c.QueryParam("scope"))
	switch scope {
	case "":
		scope = lifecycle.ScopeAll
	case lifecycle.ScopeActive, lifecycle.ScopeHistory, lifecycle.ScopeAll:
	default:
		return badRequest(c, "scope must be active, history or all")
	}

	var (
		list []lifecycle.Request
		err  error
	)
	switch c.QueryParam("role") {
	case "", "requester":
		list, err = v.Engine.ListForRequester(ctx, p, scope, limit)
	case "provider":
		list, err = v.Engine.ListForProvider(ctx, p, scope, limit)
	case "feed":
		list, err = v.Engine.OpenFeed(ctx, p, limit)
	default:
		return badRequest(c, "role must be requester, provider or feed")
	}
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	if list == nil {
		list = []lifecycle.Request{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "requests": list})
}

// GET /api/:domain/requests/:id
func (v *Vertical) GetRequest(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := v.Engine.Get(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "request": r})
}

// GET /api/:domain/requests/:id/bids
func (v *Vertical) ListBids(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	bids, err := v.Engine.ListBids(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	if bids == nil {
		bids = []lifecycle.Bid{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "bids": bids})
}

// POST /api/:domain/requests/:id/bids
func (v *Vertical) PlaceBid(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	body := new(BidBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c, "invalid request")
	}
	if msg := body.validate(); msg != "" {
		return badRequest(c, msg)
	}
	bid, err := v.Engine.PlaceBid(c.Request().Context(), p, c.Param("id"), body.Price, body.Comment)
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "bid": bid})
}

// POST /api/:domain/bids/:id/accept
func (v *Vertical) AcceptBid(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := v.Engine.AcceptBid(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "request": r})
}

// POST /api/:domain/requests/:id/claim
func (v *Vertical) ClaimFixed(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := v.Engine.ClaimFixed(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "request": r})
}

// POST /api/:domain/requests/:id/status
func (v *Vertical) AdvanceStatus(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	body := new(StatusBody)
	if err := c.Bind(body); err != nil {
		return badRequest(c, "invalid request")
	}
	target, valid := lifecycle.ParseStatus(body.Status)
	if !valid {
		return badRequest(c, "unknown status")
	}
	r, err := v.Engine.AdvanceStatus(c.Request().Context(), p, c.Param("id"), target)
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "request": r})
}

// POST /api/:domain/requests/:id/cancel
func (v *Vertical) Cancel(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	r, err := v.Engine.Cancel(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "request": r})
}

// GET /api/:domain/requests/:id/provider
func (v *Vertical) AssignedProvider(c echo.Context) error {
	p, ok := caller(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	r, err := v.Engine.AssignedProvider(ctx, p, c.Param("id"))
	if err != nil {
		return respondError(c, v.Logger, err)
	}

	view := ProviderView{UserID: r.Provider.UserID}
	if u, err := v.Users.GetUser(ctx, r.Provider.UserID); err == nil {
		view.Username, view.Name = u.Username, u.Name
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return respondError(c, v.Logger, err)
	}

	st, err := v.Gate.State(ctx, r.Provider.UserID)
	if err != nil {
		return respondError(c, v.Logger, err)
	}
	view.FullName, view.Phone = st.Profile.FullName, st.Profile.Phone
	if r.ResourceID != nil && st.Resource != nil && st.Resource.ID == *r.ResourceID {
		view.Resource = st.Resource
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "request": r, "provider": view})
}
