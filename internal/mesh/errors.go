package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrPeerUnavailable means the remote vanished mid-handshake.
	ErrPeerUnavailable = errors.New("peer unavailable")

	// ErrTrackReplaceFailed means a link had no sender for the media kind
	// being replaced. Logged, never fatal.
	ErrTrackReplaceFailed = errors.New("track replace failed")

	// ErrDuplicateConnection means a handshake arrived for an already
	// linked peer and lost the glare tie-break.
	ErrDuplicateConnection = errors.New("duplicate connection")

	// ErrUnknownPeer means a handshake event referenced a peer with no link.
	ErrUnknownPeer = errors.New("unknown peer")
)

// Error wraps a mesh failure with the operation and peer it concerns.
type Error struct {
	Op     string
	PeerID string
	Err    error
}

func (e *Error) Error() string {
	if e.PeerID != "" {
		return fmt.Sprintf("%s peer %s: %v", e.Op, e.PeerID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, peerID string, err error) *Error {
	return &Error{Op: op, PeerID: peerID, Err: err}
}
