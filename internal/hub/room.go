package hub

// Room tracks the live connections of one meeting. Participant records
// themselves live in the Store; the room only maps connected sockets so
// events can be relayed and broadcast.
type Room struct {
	// ID is the meeting id.
	ID string

	// clients maps participant id to the live connection.
	clients map[string]*Client

	// byPeer indexes connections by their announced peer id, used to
	// route targeted webrtc handshake events.
	byPeer map[string]*Client
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		clients: make(map[string]*Client),
		byPeer:  make(map[string]*Client),
	}
}

func (r *Room) add(c *Client) {
	r.clients[c.ParticipantID] = c
	if c.PeerID != "" {
		r.byPeer[c.PeerID] = c
	}
}

func (r *Room) remove(c *Client) {
	if r.clients[c.ParticipantID] == c {
		delete(r.clients, c.ParticipantID)
	}
	if c.PeerID != "" && r.byPeer[c.PeerID] == c {
		delete(r.byPeer, c.PeerID)
	}
}

func (r *Room) setPeerID(c *Client, peerID string) {
	if c.PeerID != "" {
		delete(r.byPeer, c.PeerID)
	}
	c.PeerID = peerID
	if peerID != "" {
		r.byPeer[peerID] = c
	}
}

func (r *Room) empty() bool { return len(r.clients) == 0 }
