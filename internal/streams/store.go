// Package streams keeps the most recently received remote media stream
// per peer id. A new stream for a peer always replaces the old one
// wholesale; renegotiation produces a fresh stream object.
package streams

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream groups the remote tracks received over one peer connection.
type RemoteStream struct {
	PeerID string
	Audio  *webrtc.TrackRemote
	Video  *webrtc.TrackRemote
}

// Store is a keyed map peer id -> stream, owned by the session and
// exposed read-only to the rendering layer.
type Store struct {
	mu      sync.RWMutex
	streams map[string]*RemoteStream
}

func NewStore() *Store {
	return &Store{streams: make(map[string]*RemoteStream)}
}

// Set replaces the stream for a peer id.
func (s *Store) Set(peerID string, stream *RemoteStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[peerID] = stream
}

// AddTrack folds a newly received track into the peer's stream, creating
// the stream entry on first arrival.
func (s *Store) AddTrack(peerID string, track *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[peerID]
	if !ok {
		stream = &RemoteStream{PeerID: peerID}
		s.streams[peerID] = stream
	}
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		stream.Audio = track
	} else {
		stream.Video = track
	}
}

// Get returns the stream for a peer id, if any.
func (s *Store) Get(peerID string) (*RemoteStream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.streams[peerID]
	return stream, ok
}

// Delete removes the stream for a peer id.
func (s *Store) Delete(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, peerID)
}

// Clear removes every stream.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string]*RemoteStream)
}

// Len reports the number of stored streams.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// PeerIDs returns the peer ids with a stored stream.
func (s *Store) PeerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.streams))
	for id := range s.streams {
		out = append(out, id)
	}
	return out
}
