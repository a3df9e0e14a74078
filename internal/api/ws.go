package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/companygpt/sidekick/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Wire type tags pushed to connected panels.
var wireTypes = map[events.Type]string{
	events.AuthStateChanged:  "AUTH_STATE_CHANGED",
	events.TenantResolved:    "TENANT_RESOLVED",
	events.StateSync:         "STATE_SYNC",
	events.ContentUpdated:    "CONTENT_UPDATED",
	events.TabChanged:        "TAB_CHANGED",
	events.ChatStepStarted:   "CHAT_STEP_STARTED",
	events.ChatStepCompleted: "CHAT_STEP_COMPLETED",
	events.ChatStepFailed:    "CHAT_STEP_FAILED",
	events.ChatAborted:       "CHAT_ABORTED",
	events.SystemError:       "SYSTEM_ERROR",
}

// pushMessage is one websocket notification.
type pushMessage struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// wsClient is one connected panel.
type wsClient struct {
	conn   *websocket.Conn
	server *Server
	cancel context.CancelFunc
}

// handleWebSocket upgrades the connection and streams bus events to it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{conn: conn, server: s, cancel: cancel}

	types := make([]events.Type, 0, len(wireTypes))
	for t := range wireTypes {
		types = append(types, t)
	}
	feed := s.bus.Subscribe(ctx, events.TypeFilter(types...))

	s.logger.Debug("panel connected", "remote", r.RemoteAddr)
	go client.writePump(feed)
	go client.readPump()
}

// readPump drains the connection; panels only send pings.
func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
	}
}

// writePump forwards bus events and keeps the connection alive.
func (c *wsClient) writePump(feed <-chan events.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-feed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg := pushMessage{Type: wireTypes[ev.Type], Payload: ev.Payload, Timestamp: ev.Timestamp}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
