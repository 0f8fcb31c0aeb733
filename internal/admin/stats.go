package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/lifecycle"
)

// DomainStats counts one vertical's requests.
type DomainStats struct {
	ByStatus map[lifecycle.Status]int `json:"by_status"`
	Active   int                      `json:"active"`
	Total    int                      `json:"total"`
	Pending  int                      `json:"pending_providers"`
}

// GET /api/admin/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.Requests.CountByStatus(ctx)
	if err != nil {
		return h.fail(c, err)
	}

	domains := make(map[string]DomainStats, len(h.Gates))
	for name, g := range h.Gates {
		st := DomainStats{ByStatus: counts[name]}
		if st.ByStatus == nil {
			st.ByStatus = map[lifecycle.Status]int{}
		}
		for status, n := range st.ByStatus {
			st.Total += n
			if status.Active() {
				st.Active += n
			}
		}
		pending, err := g.ListPending(ctx)
		if err != nil {
			return h.fail(c, err)
		}
		st.Pending = len(pending)
		domains[name] = st
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":       true,
		"domains":  domains,
		"realtime": h.Broker.Stats(),
	})
}
