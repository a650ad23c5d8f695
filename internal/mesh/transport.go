package mesh

import (
	"github.com/meshmeet/meshmeet/internal/config"
	"github.com/meshmeet/meshmeet/internal/utils"
	"github.com/pion/webrtc/v4"
)

// Sender is one outbound RTP sender on a peer connection.
type Sender interface {
	Kind() webrtc.RTPCodecType
	ReplaceTrack(track webrtc.TrackLocal) error
}

// DataChannel is the subset of a WebRTC data channel the mesh uses.
type DataChannel interface {
	Label() string
	Send(data []byte) error
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	Close() error
}

// Transport abstracts one underlying peer connection so the link state
// machine is testable without any real network.
type Transport interface {
	AddTrack(track webrtc.TrackLocal) (Sender, error)

	// CreateOffer produces an offer and installs it as the local
	// description.
	CreateOffer() (webrtc.SessionDescription, error)

	// CreateAnswer installs the offer as the remote description, produces
	// an answer and installs it as the local description.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// SetAnswer installs the remote answer.
	SetAnswer(answer webrtc.SessionDescription) error

	AddICECandidate(c webrtc.ICECandidateInit) error
	RemoteDescriptionSet() bool

	CreateDataChannel(label string) (DataChannel, error)

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(track *webrtc.TrackRemote))
	OnConnectionStateChange(fn func(state webrtc.PeerConnectionState))
	OnDataChannel(fn func(dc DataChannel))

	Close() error
}

// TransportFactory creates a Transport per new link.
type TransportFactory func() (Transport, error)

// NewPionFactory builds peer connections from the configured ICE servers,
// forcing TURN relay when requested or when the host is likely behind a
// restrictive VPN or CGNAT.
func NewPionFactory(cfg *config.Config) TransportFactory {
	return func() (Transport, error) {
		iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

		turnServers := cfg.GetTURNServers()
		if turnServers != nil {
			username, password := cfg.GetTURNCredentials()
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       turnServers,
				Username:   username,
				Credential: password,
			})
		}

		policy := webrtc.ICETransportPolicyAll
		if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
			policy = webrtc.ICETransportPolicyRelay
		}

		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		})
		if err != nil {
			return nil, NewError("create peer connection", "", err)
		}
		return &pionTransport{pc: pc}, nil
	}
}

type pionTransport struct {
	pc *webrtc.PeerConnection
}

func (t *pionTransport) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return &pionSender{sender: sender}, nil
}

func (t *pionTransport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *t.pc.LocalDescription(), nil
}

func (t *pionTransport) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *t.pc.LocalDescription(), nil
}

func (t *pionTransport) SetAnswer(answer webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(answer)
}

func (t *pionTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

func (t *pionTransport) RemoteDescriptionSet() bool {
	return t.pc.RemoteDescription() != nil
}

func (t *pionTransport) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := t.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return &pionDataChannel{dc: dc}, nil
}

func (t *pionTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (t *pionTransport) OnTrack(fn func(*webrtc.TrackRemote)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (t *pionTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *pionTransport) OnDataChannel(fn func(DataChannel)) {
	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(&pionDataChannel{dc: dc})
	})
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

type pionSender struct {
	sender *webrtc.RTPSender
}

func (s *pionSender) Kind() webrtc.RTPCodecType {
	if track := s.sender.Track(); track != nil {
		return track.Kind()
	}
	return webrtc.RTPCodecTypeVideo
}

func (s *pionSender) ReplaceTrack(track webrtc.TrackLocal) error {
	return s.sender.ReplaceTrack(track)
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) Label() string { return d.dc.Label() }

func (d *pionDataChannel) Send(data []byte) error { return d.dc.Send(data) }

func (d *pionDataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }

func (d *pionDataChannel) OnMessage(fn func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (d *pionDataChannel) Close() error { return d.dc.Close() }
