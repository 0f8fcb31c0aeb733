package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler pushes the domain's events over a websocket as
// {"type": <event>, "data": <payload>} frames.
func WSHandler(b *Broker, domain string) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := c.Get("user_id").(string)
		if !ok || userID == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "unauthorized"})
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		sub := b.Subscribe(domain)
		defer b.Unsubscribe(sub)

		// Read loop only detects disconnects; the protocol is server push.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(KeepAliveInterval)
		defer ping.Stop()

		for {
			select {
			case <-gone:
				return nil
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return nil
				}
			case evt, ok := <-sub.C():
				if !ok {
					return nil
				}
				payload, _ := json.Marshal(wsEvent{Type: evt.Name, Data: evt.Data})
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return nil
				}
			}
		}
	}
}
