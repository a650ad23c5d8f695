package signaling

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meshmeet/meshmeet/internal/config"
	"github.com/meshmeet/meshmeet/internal/dns"
	"log/slog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 15 * time.Second
	maxReconnects = 8
)

var (
	// ErrAuthenticationRejected means the server refused the bearer token.
	// This is the only signaling failure treated as fatal for the session.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrConnectionFailed covers every other handshake failure.
	ErrConnectionFailed = errors.New("signaling connection failed")
)

// Client manages the WebSocket connection to the signaling server for one
// meeting room. A lost connection is redialed with exponential backoff; on
// every (re)connect the client announces itself with a join event and
// requests a fresh participant snapshot, so consumers must tolerate a full
// existing-participants replay.
type Client struct {
	serverURL   string
	token       string
	displayName string
	meetingID   string

	incoming chan Event
	outgoing chan Event
	done     chan struct{}
	degraded chan struct{}

	closeOnce sync.Once
}

// NewClient creates a signaling client scoped to one meeting room.
func NewClient(cfg *config.Config, meetingID string) *Client {
	return &Client{
		serverURL:   cfg.RoomSignalingURL(meetingID),
		token:       cfg.Token,
		displayName: cfg.DisplayName,
		meetingID:   meetingID,
		incoming:    make(chan Event, 64),
		outgoing:    make(chan Event, 64),
		done:        make(chan struct{}),
		degraded:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection. The initial dial fails
// synchronously; reconnects after that are automatic.
func (c *Client) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	go c.run(conn)
	return nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
		// Custom dialer that uses our robust DNS lookup
		NetDial: func(network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			resolvedIP, err := dns.Lookup(host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			return net.Dial(network, net.JoinHostPort(resolvedIP, port))
		},
	}

	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	conn, resp, err := dialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: server returned %d", ErrAuthenticationRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return conn, nil
}

// run owns the connection lifecycle: pumps, reconnects, teardown.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.incoming)

	attempts := 0
	for {
		lost := make(chan struct{})
		connDone := make(chan struct{})

		go c.readPump(conn, lost)
		go c.writePump(conn, connDone)
		c.announce()

		select {
		case <-c.done:
			close(connDone)
			return
		case <-lost:
			close(connDone)
			conn.Close()
		}

		// Redial with backoff. Auth rejection is not retried.
		redialed := false
		for !redialed {
			attempts++
			if attempts > maxReconnects {
				slog.Error("signaling reconnect attempts exhausted", "meeting", c.meetingID)
				close(c.degraded)
				return
			}

			select {
			case <-time.After(backoff(attempts)):
			case <-c.done:
				return
			}

			nc, err := c.dial()
			if errors.Is(err, ErrAuthenticationRejected) {
				slog.Error("signaling reauthentication rejected", "meeting", c.meetingID)
				close(c.degraded)
				return
			}
			if err != nil {
				slog.Warn("signaling redial failed", "attempt", attempts, "err", err)
				continue
			}

			conn = nc
			attempts = 0
			redialed = true
		}
	}
}

// announce replays the room handshake: join with the local display name,
// then a request for the current participant snapshot.
func (c *Client) announce() {
	join, err := NewEvent(EventJoin, JoinPayload{DisplayName: c.displayName})
	if err != nil {
		return
	}
	join.MeetingID = c.meetingID
	c.Send(join)

	c.Send(Event{Type: EventGetParticipants, MeetingID: c.meetingID})
}

// readPump reads events from the WebSocket connection.
func (c *Client) readPump(conn *websocket.Conn, lost chan struct{}) {
	defer close(lost)

	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}

		select {
		case c.incoming <- ev:
		case <-c.done:
			return
		}
	}
}

// writePump writes events to the WebSocket connection and sends periodic pings.
func (c *Client) writePump(conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Flush anything enqueued before shutdown (the leave event)
			// so it is not lost to the select race.
			for {
				select {
				case ev := <-c.outgoing:
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteJSON(ev); err != nil {
						conn.Close()
						return
					}
				default:
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					conn.WriteMessage(websocket.CloseMessage, []byte{})
					conn.Close()
					return
				}
			}

		case <-connDone:
			return
		}
	}
}

// Send enqueues an event for delivery. Events enqueued while the
// connection is down are flushed after a successful reconnect.
func (c *Client) Send(ev Event) {
	select {
	case c.outgoing <- ev:
	case <-c.done:
	}
}

// Incoming returns the channel of received events. It is closed once the
// client shuts down or the connection is degraded.
func (c *Client) Incoming() <-chan Event {
	return c.incoming
}

// Degraded is closed when reconnect attempts are exhausted or the server
// rejects reauthentication.
func (c *Client) Degraded() <-chan struct{} {
	return c.degraded
}

// Close shuts the connection down. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func backoff(attempt int) time.Duration {
	d := reconnectBase << (attempt - 1)
	if d > reconnectMax {
		d = reconnectMax
	}
	// jitter avoids thundering reconnects after a server restart
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}
