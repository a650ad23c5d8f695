package hub

import (
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Enough for an SDP offer.
	maxMessageSize = 64 * 1024
)

// Client wraps one participant's websocket connection. Identity comes
// from the validated JWT at upgrade time; the room attaches the client
// once its join event arrives.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	MeetingID     string
	UserID        string
	DisplayName   string
	ParticipantID string
	PeerID        string

	// Send is the outbound event queue drained by WritePump.
	Send chan signaling.Event
}

// ReadPump pumps events from the websocket connection to the hub. At
// most one reader per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev signaling.Event
		if err := c.Conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "err", err)
			}
			return
		}
		c.Hub.Inbound <- &Inbound{Client: c, Event: ev}
	}
}

// WritePump pumps events from the hub to the websocket connection. At
// most one writer per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				slog.Debug("websocket write error", "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues an event, dropping it if the client is too slow to
// keep the hub loop from blocking.
func (c *Client) deliver(ev signaling.Event) {
	select {
	case c.Send <- ev:
	default:
		slog.Warn("dropping event for slow client", "participant", c.ParticipantID, "type", ev.Type)
	}
}
