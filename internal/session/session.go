// Package session ties the subsystem together: one actor goroutine owns
// the participant registry, the stream store and the link table, and is
// the only place any of them are mutated.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/meshmeet/meshmeet/internal/api"
	"github.com/meshmeet/meshmeet/internal/config"
	"github.com/meshmeet/meshmeet/internal/media"
	"github.com/meshmeet/meshmeet/internal/mesh"
	"github.com/meshmeet/meshmeet/internal/registry"
	"github.com/meshmeet/meshmeet/internal/signaling"
	"github.com/meshmeet/meshmeet/internal/streams"
	"github.com/pion/webrtc/v4"
)

// Session is one attachment to one meeting room.
type Session struct {
	cfg       *config.Config
	meetingID string

	api   *api.Client
	media *media.Controller
	reg   *registry.Registry
	store *streams.Store

	sig  *signaling.Client
	mesh *mesh.Manager

	localID string
	peerID  string

	calls   chan func()
	notices chan Notice
	done    chan struct{}

	leaveOnce sync.Once
}

// New wires a session. source may be nil, in which case the synthetic
// media source is used.
func New(cfg *config.Config, meetingID string, source media.Source) *Session {
	if source == nil {
		source = media.NewSyntheticSource()
	}
	return &Session{
		cfg:       cfg,
		meetingID: meetingID,
		api:       api.NewClient(cfg),
		media:     media.NewController(source),
		reg:       registry.New(),
		store:     streams.NewStore(),
		calls:     make(chan func(), 32),
		notices:   make(chan Notice, 64),
		done:      make(chan struct{}),
	}
}

// Join runs the join flow: REST join, media acquisition, signaling
// connect, peer endpoint announcement. Media failure is not fatal; the
// participant simply joins without outbound media until retried.
func (s *Session) Join(ctx context.Context) error {
	resp, err := s.api.JoinMeeting(ctx, s.meetingID, s.cfg.DisplayName)
	if err != nil {
		return fmt.Errorf("join meeting: %w", err)
	}

	local := registry.FromPayload(resp.Participant)
	if local.DisplayName == "" {
		local.DisplayName = s.cfg.DisplayName
	}
	s.localID = local.ID
	s.reg.SetLocal(local)

	if _, err := s.media.Acquire(media.DefaultConstraints()); err != nil {
		slog.Warn("media acquisition failed, joining without outbound media", "err", err)
		s.notice(Notice{Kind: NoticeError, Text: "no local media: " + err.Error()})
	}
	s.media.SetOnScreenShareEnded(func() {
		s.do(func() { s.screenShareStopped() })
	})

	s.sig = signaling.NewClient(s.cfg, s.meetingID)
	if err := s.sig.Connect(); err != nil {
		s.media.Release()
		return err
	}

	s.peerID = uuid.NewString()
	s.mesh = mesh.NewManager(s.peerID, mesh.NewPionFactory(s.cfg), s.media, s.store, s.sig.Send)
	s.reg.SetPeerID(s.localID, s.peerID)

	// Announce the peer endpoint, then persist it.
	ev, err := signaling.NewEvent(signaling.EventPeerConnected, signaling.PeerConnectedPayload{
		ParticipantID: s.localID,
		PeerID:        s.peerID,
	})
	if err == nil {
		ev.MeetingID = s.meetingID
		s.sig.Send(ev)
	}
	s.patchAsync(signaling.UpdatePayload{PeerID: &s.peerID})

	go s.loop()
	return nil
}

// loop is the single consumer of every event source. All shared state is
// mutated here, so a partially constructed participant or link is never
// observable by another handler.
func (s *Session) loop() {
	incoming := s.sig.Incoming()
	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-incoming:
			if !ok {
				incoming = nil
				continue
			}
			s.handleSignal(ev)

		case ev := <-s.mesh.Events():
			s.handleMesh(ev)

		case fn := <-s.calls:
			fn()

		case <-s.sig.Degraded():
			s.notice(Notice{Kind: NoticeDegraded, Text: "signaling connection lost"})
			return
		}
	}
}

// do posts work onto the session actor.
func (s *Session) do(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.done:
	}
}

func (s *Session) handleSignal(ev signaling.Event) {
	switch ev.Type {

	case signaling.EventExistingParticipants:
		var payload []signaling.ParticipantPayload
		if err := ev.Decode(&payload); err != nil {
			slog.Warn("bad participant snapshot", "err", err)
			return
		}
		snapshot := make([]registry.Participant, 0, len(payload))
		for _, p := range payload {
			snapshot = append(snapshot, registry.FromPayload(p))
		}
		// A replay after reconnect prunes everyone the snapshot omits.
		for _, gone := range s.reg.Reconcile(snapshot) {
			if gone.PeerID != "" {
				s.mesh.ClosePeer(gone.PeerID)
			}
		}
		for _, p := range snapshot {
			s.maybeCall(p.PeerID)
		}

	case signaling.EventParticipantJoined:
		var p signaling.ParticipantPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		s.reg.Add(registry.FromPayload(p))
		s.maybeCall(p.PeerID)

	case signaling.EventParticipantLeft, signaling.EventRemove:
		// Two body shapes arrive here: departure events carry {id}, host
		// moderation carries {participant_id}. Unknown fields decode
		// silently, so both are tried and an empty id means a bad event.
		var left signaling.LeftPayload
		_ = ev.Decode(&left)
		if left.ID == "" {
			var target signaling.TargetPayload
			if err := ev.Decode(&target); err != nil {
				return
			}
			left.ID = target.ParticipantID
		}
		if left.ID == "" {
			return
		}
		if left.ID == s.localID {
			s.notice(Notice{Kind: NoticeRemoved, Text: "removed from the meeting"})
			go s.Leave()
			return
		}
		if p, ok := s.reg.Remove(left.ID); ok && p.PeerID != "" {
			s.mesh.ClosePeer(p.PeerID)
		}

	case signaling.EventUpdate:
		var u signaling.UpdatePayload
		if err := ev.Decode(&u); err != nil {
			return
		}
		s.reg.ApplyUpdate(u, true)
		if u.PeerID != nil {
			s.maybeCall(*u.PeerID)
		}

	case signaling.EventPeerConnected:
		var p signaling.PeerConnectedPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if p.PeerID == s.peerID {
			return // echo of our own broadcast
		}
		// The participant record may not have arrived yet; that is fine,
		// the mesh is keyed by peer id and the registry catches up.
		s.reg.SetPeerID(p.ParticipantID, p.PeerID)
		s.maybeCall(p.PeerID)

	case signaling.EventOffer:
		if err := s.mesh.HandleOffer(ev); err != nil {
			slog.Debug("offer not handled", "err", err)
		}

	case signaling.EventAnswer:
		if err := s.mesh.HandleAnswer(ev); err != nil {
			slog.Debug("answer not handled", "err", err)
		}

	case signaling.EventICECandidate:
		if err := s.mesh.HandleCandidate(ev); err != nil {
			slog.Debug("candidate not handled", "err", err)
		}

	case signaling.EventChatMessage:
		var chat signaling.ChatPayload
		if err := ev.Decode(&chat); err != nil {
			return
		}
		s.notice(Notice{Kind: NoticeChat, Chat: chat})

	case signaling.EventReaction:
		var r signaling.ReactionPayload
		if err := ev.Decode(&r); err != nil {
			return
		}
		s.notice(Notice{Kind: NoticeReaction, Reaction: r})

	case signaling.EventRaiseHand:
		var h signaling.HandPayload
		if err := ev.Decode(&h); err != nil {
			return
		}
		s.reg.ApplyUpdate(signaling.UpdatePayload{
			ParticipantID: h.ParticipantID,
			IsHandRaised:  &h.Raised,
		}, true)

	case signaling.EventSpeakingStatus:
		var sp signaling.SpeakingPayload
		if err := ev.Decode(&sp); err != nil {
			return
		}
		s.reg.ApplyUpdate(signaling.UpdatePayload{
			ParticipantID: sp.ParticipantID,
			IsSpeaking:    &sp.Speaking,
		}, true)

	case signaling.EventMuteParticipant:
		var target signaling.TargetPayload
		if err := ev.Decode(&target); err != nil {
			return
		}
		if target.ParticipantID == s.localID {
			// host muted us: a command, not an echo
			s.setMuted(true)
		}

	case signaling.EventError:
		var e signaling.ErrorPayload
		if err := ev.Decode(&e); err != nil {
			return
		}
		s.notice(Notice{Kind: NoticeError, Text: e.Error})
	}
}

func (s *Session) handleMesh(ev mesh.Event) {
	switch ev.Kind {
	case mesh.EventLinkState:
		if ev.ConnState == webrtc.PeerConnectionStateConnected {
			s.mesh.MarkConnected(ev.PeerID)
		}

	case mesh.EventLinkFailed:
		s.mesh.ClosePeer(ev.PeerID)
		s.reg.ClearPeerID(ev.PeerID)

	case mesh.EventControlOpen:
		s.mesh.AttachControl(ev.PeerID, ev.Control)

	case mesh.EventTrackReceived:
		s.notice(Notice{Kind: NoticeStream, PeerID: ev.PeerID})

	case mesh.EventQuality:
		if p, ok := s.reg.ByPeerID(ev.PeerID); ok {
			q := string(ev.Quality)
			s.reg.ApplyUpdate(signaling.UpdatePayload{ParticipantID: p.ID, Quality: &q}, false)
		}

	case mesh.EventSpeaking:
		if p, ok := s.reg.ByPeerID(ev.PeerID); ok {
			s.reg.ApplyUpdate(signaling.UpdatePayload{ParticipantID: p.ID, IsSpeaking: &ev.Speaking}, true)
		}
	}
}

// maybeCall initiates the caller path when a remote peer endpoint is
// known, we hold the smaller peer id, and no link exists yet.
func (s *Session) maybeCall(remotePeerID string) {
	if remotePeerID == "" || remotePeerID == s.peerID {
		return
	}
	if !s.mesh.ShouldCall(remotePeerID) || s.mesh.HasLink(remotePeerID) {
		return
	}
	if err := s.mesh.Call(remotePeerID); err != nil {
		slog.Warn("call failed", "peer", remotePeerID, "err", err)
	}
}

func (s *Session) notice(n Notice) {
	select {
	case s.notices <- n:
	default:
	}
}

// patchAsync persists partial participant state without blocking the actor.
func (s *Session) patchAsync(update signaling.UpdatePayload) {
	meetingID, participantID := s.meetingID, s.localID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.api.PatchParticipant(ctx, meetingID, participantID, update); err != nil {
			slog.Warn("participant patch failed", "err", err)
		}
	}()
}

// Leave tears the session down: stop local tracks, close every link,
// clear the stream store, emit leave, close signaling, then tell the
// metadata service. Track shutdown is deferred first so tracks always
// stop even if a later step fails.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		defer s.media.Release()

		done := make(chan struct{})
		s.do(func() {
			defer close(done)
			s.mesh.CloseAll()
			s.store.Clear()
		})
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}

		close(s.done)

		if s.sig != nil {
			s.sig.Send(signaling.Event{Type: signaling.EventLeave, MeetingID: s.meetingID})
			s.sig.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.api.LeaveMeeting(ctx, s.meetingID, s.localID); err != nil {
			slog.Warn("leave meeting failed", "err", err)
		}
	})
}

// Registry exposes the participant registry, read-only by convention.
func (s *Session) Registry() *registry.Registry { return s.reg }

// Streams exposes the remote stream store, read-only by convention.
func (s *Session) Streams() *streams.Store { return s.store }

// Notices returns UI-facing session events.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Done is closed once the session has left the meeting.
func (s *Session) Done() <-chan struct{} { return s.done }

// Local returns the local participant record.
func (s *Session) Local() (registry.Participant, bool) {
	return s.reg.Get(s.localID)
}

// MeetingID returns the joined meeting id.
func (s *Session) MeetingID() string { return s.meetingID }
