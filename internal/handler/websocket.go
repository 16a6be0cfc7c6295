package handler

import (
	"net/http"

	"gowa-dispatch/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced by the echo middleware; the upgrade itself accepts
	// any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /ws
func WebSocketHandler(hub *ws.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return ErrorResponse(c, 400, "Failed to upgrade connection", "WS_UPGRADE_FAILED", err.Error())
		}

		client := ws.NewClient(hub, conn)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()

		return nil
	}
}
