package hub

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	sendBufferSize = 256
)

// Conn is one live websocket client. Outbound frames queue on a bounded
// channel; a client that cannot drain it is dropped rather than allowed to
// stall fan-out to everyone else.
type Conn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// rooms this connection joined; guarded by hub.mu.
	rooms map[string]struct{}
}

// trySend queues a frame without blocking. Caller holds hub.mu (read).
func (c *Conn) trySend(frame []byte) {
	select {
	case c.send <- frame:
	default:
		// Slow client; drop the frame, delivery is at-most-once anyway.
	}
}

// HandleWS upgrades the request and runs the connection's read and write
// pumps. Blocks until the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if h.allowedOrigin == "" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == h.allowedOrigin
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Conn{
		id:    uuid.NewString(),
		hub:   h,
		ws:    ws,
		send:  make(chan []byte, sendBufferSize),
		rooms: make(map[string]struct{}),
	}
	h.register(c)
	h.logger.Debug("websocket connected", "conn", c.id)

	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
		c.hub.logger.Debug("websocket disconnected", "conn", c.id)
	}()
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "conn", c.id, "error", err)
			}
			return
		}
		c.hub.handleInbound(c, frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
