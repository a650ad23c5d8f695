package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// The write pump must deliver events enqueued before Close; the leave
// event rides this path during teardown.
func TestWritePumpFlushesQueuedEventsOnClose(t *testing.T) {
	received := make(chan Event, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				close(received)
				return
			}
			received <- ev
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	c := &Client{
		outgoing: make(chan Event, 64),
		done:     make(chan struct{}),
	}
	c.Send(Event{Type: EventUpdate, MeetingID: "m1"})
	c.Send(Event{Type: EventLeave, MeetingID: "m1"})
	c.Close()

	c.writePump(conn, make(chan struct{}))

	var got []EventType
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-received:
			if !ok {
				require.Equal(t, []EventType{EventUpdate, EventLeave}, got)
				return
			}
			got = append(got, ev.Type)
		case <-deadline:
			t.Fatalf("queued events not flushed before close, got %v", got)
		}
	}
}
