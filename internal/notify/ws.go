package notify

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the request and streams commit events to the client
// until it disconnects.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "error", err)
			return
		}

		client := &wsClient{
			conn: ws,
			send: make(chan []byte, DefaultBuffer),
			done: make(chan struct{}),
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`)); err != nil {
			_ = ws.Close()
			return
		}
		if !hub.addWS(client) {
			_ = ws.Close()
			return
		}
		slog.Debug("websocket client connected", "remote", c.Request.RemoteAddr)

		go client.writeLoop()

		// Incoming messages are ignored; reading detects the disconnect.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.removeWS(client)
		slog.Debug("websocket client disconnected", "remote", c.Request.RemoteAddr)
	}
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
		}
	}
}
