package session

import (
	"context"
	"time"

	"log/slog"

	"github.com/meshmeet/meshmeet/internal/registry"
	"github.com/meshmeet/meshmeet/internal/signaling"
)

// Local-origin toggles update the local record immediately (the local
// participant is authoritative for itself), broadcast a
// participant-updated so other clients converge, and persist the flag.

// SetMuted flips the mic. The track keeps flowing; it carries silence.
func (s *Session) SetMuted(muted bool) {
	s.do(func() { s.setMuted(muted) })
}

func (s *Session) setMuted(muted bool) {
	s.media.ToggleAudio(!muted)
	s.applyLocal(signaling.UpdatePayload{IsMuted: &muted})
}

// SetVideoOn flips the camera track in place; no renegotiation.
func (s *Session) SetVideoOn(on bool) {
	s.do(func() {
		s.media.ToggleVideo(on)
		s.applyLocal(signaling.UpdatePayload{IsVideoOn: &on})
	})
}

// StartScreenShare acquires the screen capture and swaps it into the
// outbound video sender of every link.
func (s *Session) StartScreenShare() {
	s.do(func() {
		if _, err := s.media.StartScreenShare(); err != nil {
			s.notice(Notice{Kind: NoticeError, Text: err.Error()})
			return
		}
		s.swapOutboundVideo()
		sharing := true
		s.applyLocal(signaling.UpdatePayload{IsScreenSharing: &sharing})
	})
}

// StopScreenShare releases the screen capture and restores the camera
// track on every link.
func (s *Session) StopScreenShare() {
	s.do(func() { s.screenShareStopped() })
}

// screenShareStopped also runs when the platform ends the share
// out-of-band.
func (s *Session) screenShareStopped() {
	s.media.StopScreenShare()
	s.swapOutboundVideo()
	sharing := false
	s.applyLocal(signaling.UpdatePayload{IsScreenSharing: &sharing})
}

func (s *Session) swapOutboundVideo() {
	track := s.media.OutboundVideoTrack()
	if track == nil {
		return
	}
	if err := s.mesh.ReplaceVideoTrack(track.Local()); err != nil {
		s.notice(Notice{Kind: NoticeError, Text: err.Error()})
	}
}

// RaiseHand flips the raised-hand flag.
func (s *Session) RaiseHand(raised bool) {
	s.do(func() {
		s.applyLocal(signaling.UpdatePayload{IsHandRaised: &raised})
		if ev, err := signaling.NewEvent(signaling.EventRaiseHand, signaling.HandPayload{
			ParticipantID: s.localID,
			Raised:        raised,
		}); err == nil {
			ev.MeetingID = s.meetingID
			s.sig.Send(ev)
		}
	})
}

// SetSpeaking updates the speaking flag, broadcast over signaling and
// relayed over the mesh control channels.
func (s *Session) SetSpeaking(speaking bool) {
	s.do(func() {
		s.reg.ApplyUpdate(signaling.UpdatePayload{ParticipantID: s.localID, IsSpeaking: &speaking}, false)
		if ev, err := signaling.NewEvent(signaling.EventSpeakingStatus, signaling.SpeakingPayload{
			ParticipantID: s.localID,
			Speaking:      speaking,
		}); err == nil {
			ev.MeetingID = s.meetingID
			s.sig.Send(ev)
		}
		s.mesh.SendSpeaking(speaking)
	})
}

// SendChat broadcasts a chat line to the room.
func (s *Session) SendChat(text string) {
	s.do(func() {
		local, _ := s.Local()
		chat := signaling.ChatPayload{
			ParticipantID: s.localID,
			DisplayName:   local.DisplayName,
			Text:          text,
			SentAt:        time.Now(),
		}
		if ev, err := signaling.NewEvent(signaling.EventChatMessage, chat); err == nil {
			ev.MeetingID = s.meetingID
			s.sig.Send(ev)
		}
		s.notice(Notice{Kind: NoticeChat, Chat: chat})
	})
}

// SendReaction broadcasts an emoji reaction.
func (s *Session) SendReaction(emoji string) {
	s.do(func() {
		if ev, err := signaling.NewEvent(signaling.EventReaction, signaling.ReactionPayload{
			ParticipantID: s.localID,
			Emoji:         emoji,
		}); err == nil {
			ev.MeetingID = s.meetingID
			s.sig.Send(ev)
		}
	})
}

// MuteParticipant asks another participant to mute. Host/co-host only.
func (s *Session) MuteParticipant(participantID string) {
	s.do(func() {
		if !s.canModerate() {
			s.notice(Notice{Kind: NoticeError, Text: "only hosts can mute others"})
			return
		}
		if ev, err := signaling.NewEvent(signaling.EventMuteParticipant, signaling.TargetPayload{
			ParticipantID: participantID,
		}); err == nil {
			ev.MeetingID = s.meetingID
			s.sig.Send(ev)
		}
	})
}

// RemoveParticipant ejects another participant. Host/co-host only.
func (s *Session) RemoveParticipant(participantID string) {
	s.do(func() {
		if !s.canModerate() {
			s.notice(Notice{Kind: NoticeError, Text: "only hosts can remove participants"})
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.api.RemoveParticipant(ctx, s.meetingID, participantID); err != nil {
				slog.Warn("remove participant failed", "err", err)
			}
		}()
		if ev, err := signaling.NewEvent(signaling.EventRemove, signaling.TargetPayload{
			ParticipantID: participantID,
		}); err == nil {
			ev.MeetingID = s.meetingID
			s.sig.Send(ev)
		}
	})
}

// EndMeeting ends the meeting for everyone. Host only.
func (s *Session) EndMeeting() {
	s.do(func() {
		local, _ := s.Local()
		if local.Role != registry.RoleHost {
			s.notice(Notice{Kind: NoticeError, Text: "only the host can end the meeting"})
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.api.EndMeeting(ctx, s.meetingID); err != nil {
				slog.Warn("end meeting failed", "err", err)
			}
		}()
	})
}

func (s *Session) canModerate() bool {
	local, ok := s.Local()
	return ok && local.Role.CanModerate()
}

// applyLocal performs the optimistic local update, broadcast and persist.
func (s *Session) applyLocal(u signaling.UpdatePayload) {
	u.ParticipantID = s.localID
	s.reg.ApplyUpdate(u, false)

	if ev, err := signaling.NewEvent(signaling.EventUpdate, u); err == nil {
		ev.MeetingID = s.meetingID
		s.sig.Send(ev)
	}
	s.patchAsync(u)
}
