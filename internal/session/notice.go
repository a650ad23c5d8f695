package session

import "github.com/meshmeet/meshmeet/internal/signaling"

// NoticeKind tags session events surfaced to the rendering layer.
type NoticeKind int

const (
	// NoticeChat carries an incoming chat line.
	NoticeChat NoticeKind = iota
	// NoticeReaction carries an emoji reaction.
	NoticeReaction
	// NoticeStream means remote media arrived for a peer.
	NoticeStream
	// NoticeError carries a non-fatal error message.
	NoticeError
	// NoticeDegraded means signaling reconnects were exhausted.
	NoticeDegraded
	// NoticeRemoved means the host removed us from the meeting.
	NoticeRemoved
)

// Notice is one UI-facing session event.
type Notice struct {
	Kind     NoticeKind
	Text     string
	PeerID   string
	Chat     signaling.ChatPayload
	Reaction signaling.ReactionPayload
}
