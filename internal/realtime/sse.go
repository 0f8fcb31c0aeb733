package realtime

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/events"
)

// KeepAliveInterval is how often an idle stream gets a comment line.
const KeepAliveInterval = 25 * time.Second

// WriteSSE writes one event frame.
func WriteSSE(w io.Writer, evt events.Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, evt.Data)
	return err
}

// SSEHandler streams the domain's events as text/event-stream until the
// client goes away.
func SSEHandler(b *Broker, domain string) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := c.Get("user_id").(string)
		if !ok || userID == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "unauthorized"})
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		sub := b.Subscribe(domain)
		defer b.Unsubscribe(sub)

		if _, err := io.WriteString(res, ": ok\n\n"); err != nil {
			return nil
		}
		res.Flush()

		ticker := time.NewTicker(KeepAliveInterval)
		defer ticker.Stop()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := io.WriteString(res, ": ping\n\n"); err != nil {
					return nil
				}
				res.Flush()
			case evt, ok := <-sub.C():
				if !ok {
					return nil
				}
				if err := WriteSSE(res, evt); err != nil {
					return nil
				}
				res.Flush()
			}
		}
	}
}
