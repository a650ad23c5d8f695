package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/meshmeet/meshmeet/internal/registry"
	"github.com/meshmeet/meshmeet/internal/session"
)

const maxLogLines = 6

// MeetingModel is the Bubble Tea model for the live meeting view. It
// renders the roster from the session's registry and turns key presses
// into session operations.
type MeetingModel struct {
	sess *session.Session

	roster  []registry.Participant
	streams int
	log     []string

	spinner  spinner.Model
	input    textinput.Model
	chatting bool

	startTime time.Time
	width     int
	quitting  bool
	ended     bool
	endReason string
}

type rosterTickMsg time.Time

type noticeMsg session.Notice

type sessionEndedMsg struct{}

// NewMeetingModel creates the meeting view for a joined session.
func NewMeetingModel(sess *session.Session) *MeetingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "message"
	in.CharLimit = 500
	in.Width = 50

	return &MeetingModel{
		sess:      sess,
		spinner:   s,
		input:     in,
		startTime: time.Now(),
	}
}

func (m *MeetingModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listenNotices(),
		m.waitDone(),
		tickRoster(),
	)
}

func tickRoster() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return rosterTickMsg(t)
	})
}

func (m *MeetingModel) listenNotices() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-m.sess.Notices()
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func (m *MeetingModel) waitDone() tea.Cmd {
	return func() tea.Msg {
		<-m.sess.Done()
		return sessionEndedMsg{}
	}
}

func (m *MeetingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case rosterTickMsg:
		m.roster = m.sess.Registry().Snapshot()
		m.streams = m.sess.Streams().Len()
		return m, tickRoster()

	case noticeMsg:
		m.appendNotice(session.Notice(msg))
		return m, m.listenNotices()

	case sessionEndedMsg:
		m.ended = true
		if m.endReason == "" {
			m.endReason = "session ended"
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *MeetingModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.chatting {
		switch msg.Type {
		case tea.KeyEsc:
			m.chatting = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.sess.SendChat(text)
			}
			m.chatting = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	local, _ := m.sess.Local()

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "m":
		m.sess.SetMuted(!local.IsMuted)

	case "v":
		m.sess.SetVideoOn(!local.IsVideoOn)

	case "s":
		if local.IsScreenSharing {
			m.sess.StopScreenShare()
		} else {
			m.sess.StartScreenShare()
		}

	case "h":
		m.sess.RaiseHand(!local.IsHandRaised)

	case "r":
		m.sess.SendReaction("👍")
		m.appendLine(MutedStyle.Render("you reacted 👍"))

	case "c":
		m.chatting = true
		m.input.Focus()
		return m, textinput.Blink
	}

	return m, nil
}

func (m *MeetingModel) appendNotice(n session.Notice) {
	switch n.Kind {
	case session.NoticeChat:
		m.appendLine(fmt.Sprintf("%s %s: %s", IconChat, BoldStyle.Render(n.Chat.DisplayName), n.Chat.Text))
	case session.NoticeReaction:
		m.appendLine(fmt.Sprintf("reaction %s", n.Reaction.Emoji))
	case session.NoticeStream:
		m.appendLine(MutedStyle.Render(fmt.Sprintf("%s media flowing from %s", IconConnect, shortID(n.PeerID))))
	case session.NoticeError:
		m.appendLine(ErrorStyle.Render(n.Text))
	case session.NoticeDegraded:
		m.appendLine(WarningStyle.Render(IconWarning + " " + n.Text))
	case session.NoticeRemoved:
		m.endReason = n.Text
		m.ended = true
	default:
		if n.Text != "" {
			m.appendLine(n.Text)
		}
	}
}

func (m *MeetingModel) appendLine(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *MeetingModel) View() string {
	if m.quitting || m.ended {
		return ""
	}

	var b strings.Builder

	elapsed := time.Since(m.startTime).Round(time.Second)
	header := fmt.Sprintf("%s Meeting %s  %s %s  %s %d live", IconMeeting, m.sess.MeetingID(), IconTime, elapsed, IconConnect, m.streams)
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n")

	local, _ := m.sess.Local()
	for _, p := range m.roster {
		b.WriteString(m.rosterLine(p, p.ID == local.ID))
		b.WriteString("\n")
	}
	if len(m.roster) <= 1 {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s waiting for others to join %s", IconWaiting, m.spinner.View())))
		b.WriteString("\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if m.chatting {
		b.WriteString("\n" + IconChat + " " + m.input.View() + "\n")
		b.WriteString(FooterStyle.Render("enter: send • esc: cancel"))
	} else {
		b.WriteString(FooterStyle.Render("m: mute • v: video • s: screen • h: hand • r: react • c: chat • q: leave"))
	}

	return b.String()
}

func (m *MeetingModel) rosterLine(p registry.Participant, isLocal bool) string {
	var parts []string

	icon := IconPeer
	if p.Role.CanModerate() {
		icon = IconHost
	}
	name := p.DisplayName
	if isLocal {
		name += " (you)"
	}
	if p.IsSpeaking {
		name = SpeakingStyle.Render(name + " ●")
	}
	parts = append(parts, icon, BoldStyle.Render(name))

	if p.IsMuted {
		parts = append(parts, IconMicOff)
	} else {
		parts = append(parts, IconMic)
	}
	if p.IsVideoOn {
		parts = append(parts, IconCamera)
	}
	if p.IsScreenSharing {
		parts = append(parts, IconScreen)
	}
	if p.IsHandRaised {
		parts = append(parts, IconHand)
	}
	if badge := qualityBadge(p.Quality); badge != "" {
		parts = append(parts, badge)
	}

	return "  " + strings.Join(parts, " ")
}

func qualityBadge(q registry.Quality) string {
	switch q {
	case registry.QualityGood:
		return QualityGoodStyle.Render("▮▮▮")
	case registry.QualityMedium:
		return QualityMediumStyle.Render("▮▮▯")
	case registry.QualityPoor:
		return QualityPoorStyle.Render("▮▯▯")
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Quitting reports whether the user asked to leave.
func (m *MeetingModel) Quitting() bool { return m.quitting }

// EndReason returns why the session ended, if it ended on its own.
func (m *MeetingModel) EndReason() string { return m.endReason }
