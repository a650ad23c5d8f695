package mesh

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/meshmeet/meshmeet/internal/media"
	"github.com/meshmeet/meshmeet/internal/signaling"
	"github.com/meshmeet/meshmeet/internal/streams"
)

type fakeSender struct {
	kind     webrtc.RTPCodecType
	replaced []webrtc.TrackLocal
}

func (s *fakeSender) Kind() webrtc.RTPCodecType { return s.kind }

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.replaced = append(s.replaced, track)
	return nil
}

type fakeDataChannel struct {
	label  string
	sent   [][]byte
	onMsg  func([]byte)
	closed bool
}

func (d *fakeDataChannel) Label() string             { return d.label }
func (d *fakeDataChannel) Send(data []byte) error    { d.sent = append(d.sent, data); return nil }
func (d *fakeDataChannel) OnOpen(fn func())          {}
func (d *fakeDataChannel) OnMessage(fn func([]byte)) { d.onMsg = fn }
func (d *fakeDataChannel) Close() error              { d.closed = true; return nil }

type fakeTransport struct {
	senders    []*fakeSender
	candidates []webrtc.ICECandidateInit
	remoteSet  bool
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote)
	onState func(webrtc.PeerConnectionState)
	onDC    func(DataChannel)
}

func (t *fakeTransport) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	s := &fakeSender{kind: track.Kind()}
	t.senders = append(t.senders, s)
	return s, nil
}

func (t *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (t *fakeTransport) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	t.remoteSet = true
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (t *fakeTransport) SetAnswer(answer webrtc.SessionDescription) error {
	t.remoteSet = true
	return nil
}

func (t *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) RemoteDescriptionSet() bool { return t.remoteSet }

func (t *fakeTransport) CreateDataChannel(label string) (DataChannel, error) {
	return &fakeDataChannel{label: label}, nil
}

func (t *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit))            { t.onICE = fn }
func (t *fakeTransport) OnTrack(fn func(*webrtc.TrackRemote))                      { t.onTrack = fn }
func (t *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { t.onState = fn }
func (t *fakeTransport) OnDataChannel(fn func(DataChannel))                        { t.onDC = fn }

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

type fakeMedia struct {
	audio media.Track
	video media.Track
}

func (m *fakeMedia) OutboundAudioTrack() media.Track { return m.audio }
func (m *fakeMedia) OutboundVideoTrack() media.Track { return m.video }

type staticTrack struct {
	local *webrtc.TrackLocalStaticSample
}

func newStaticTrack(t *testing.T, kind webrtc.RTPCodecType) *staticTrack {
	t.Helper()
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if kind == webrtc.RTPCodecTypeVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}
	local, err := webrtc.NewTrackLocalStaticSample(codec, kind.String(), "test")
	require.NoError(t, err)
	return &staticTrack{local: local}
}

func (s *staticTrack) Local() webrtc.TrackLocal    { return s.local }
func (s *staticTrack) Kind() webrtc.RTPCodecType   { return s.local.Kind() }
func (s *staticTrack) SetEnabled(enabled bool)     {}
func (s *staticTrack) Enabled() bool               { return true }
func (s *staticTrack) Stop()                       {}

type testHarness struct {
	manager    *Manager
	store      *streams.Store
	transports []*fakeTransport
	sent       []signaling.Event
}

func newHarness(t *testing.T, localPeerID string) *testHarness {
	t.Helper()
	h := &testHarness{store: streams.NewStore()}

	factory := func() (Transport, error) {
		tp := &fakeTransport{}
		h.transports = append(h.transports, tp)
		return tp, nil
	}
	localMedia := &fakeMedia{
		audio: newStaticTrack(t, webrtc.RTPCodecTypeAudio),
		video: newStaticTrack(t, webrtc.RTPCodecTypeVideo),
	}

	h.manager = NewManager(localPeerID, factory, localMedia, h.store, func(ev signaling.Event) {
		h.sent = append(h.sent, ev)
	})
	return h
}

func (h *testHarness) lastTransport() *fakeTransport {
	return h.transports[len(h.transports)-1]
}

func offerEvent(t *testing.T, from, to string) signaling.Event {
	t.Helper()
	payload, err := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"})
	require.NoError(t, err)
	return signaling.Event{Type: signaling.EventOffer, From: from, To: to, Payload: payload}
}

func answerEvent(t *testing.T, from, to string) signaling.Event {
	t.Helper()
	payload, err := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"})
	require.NoError(t, err)
	return signaling.Event{Type: signaling.EventAnswer, From: from, To: to, Payload: payload}
}

func candidateEvent(t *testing.T, from, to, candidate string) signaling.Event {
	t.Helper()
	payload, err := json.Marshal(webrtc.ICECandidateInit{Candidate: candidate})
	require.NoError(t, err)
	return signaling.Event{Type: signaling.EventICECandidate, From: from, To: to, Payload: payload}
}

func TestShouldCallIsDeterministic(t *testing.T) {
	a := newHarness(t, "aaa").manager
	b := newHarness(t, "bbb").manager

	require.True(t, a.ShouldCall("bbb"))
	require.False(t, b.ShouldCall("aaa"))
}

func TestCallCreatesOneLink(t *testing.T) {
	h := newHarness(t, "aaa")

	require.NoError(t, h.manager.Call("bbb"))

	require.True(t, h.manager.HasLink("bbb"))
	state, ok := h.manager.LinkState("bbb")
	require.True(t, ok)
	require.Equal(t, StateOffering, state)

	require.Len(t, h.sent, 1)
	require.Equal(t, signaling.EventOffer, h.sent[0].Type)
	require.Equal(t, "aaa", h.sent[0].From)
	require.Equal(t, "bbb", h.sent[0].To)

	// Both local tracks ride the connection.
	require.Len(t, h.lastTransport().senders, 2)
}

func TestCallTwiceIsDuplicate(t *testing.T) {
	h := newHarness(t, "aaa")

	require.NoError(t, h.manager.Call("bbb"))
	err := h.manager.Call("bbb")
	require.ErrorIs(t, err, ErrDuplicateConnection)
	require.Equal(t, 1, h.manager.Len())
}

func TestCallSelfIsNoop(t *testing.T) {
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("aaa"))
	require.Equal(t, 0, h.manager.Len())
}

func TestHandleOfferAnswersCallee(t *testing.T) {
	h := newHarness(t, "bbb")

	require.NoError(t, h.manager.HandleOffer(offerEvent(t, "aaa", "bbb")))

	state, ok := h.manager.LinkState("aaa")
	require.True(t, ok)
	require.Equal(t, StateConnected, state)

	require.Len(t, h.sent, 1)
	require.Equal(t, signaling.EventAnswer, h.sent[0].Type)
	require.Equal(t, "aaa", h.sent[0].To)
}

func TestHandleOfferIgnoresWrongAddressee(t *testing.T) {
	h := newHarness(t, "bbb")

	require.NoError(t, h.manager.HandleOffer(offerEvent(t, "aaa", "ccc")))
	require.False(t, h.manager.HasLink("aaa"))
}

func TestGlareRightfulCallerDiscardsOffer(t *testing.T) {
	// "aaa" is the smaller id, so it keeps its own outbound offer.
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("bbb"))
	own := h.lastTransport()

	err := h.manager.HandleOffer(offerEvent(t, "bbb", "aaa"))
	require.ErrorIs(t, err, ErrDuplicateConnection)

	require.False(t, own.closed)
	state, _ := h.manager.LinkState("bbb")
	require.Equal(t, StateOffering, state)
	require.Equal(t, 1, h.manager.Len())
}

func TestGlareLargerIdYieldsToInboundOffer(t *testing.T) {
	// "zzz" is the larger id: its half-open link is replaced by the
	// inbound offer from the rightful caller.
	h := newHarness(t, "zzz")
	require.NoError(t, h.manager.Call("bbb"))
	own := h.lastTransport()

	require.NoError(t, h.manager.HandleOffer(offerEvent(t, "bbb", "zzz")))

	require.True(t, own.closed)
	state, ok := h.manager.LinkState("bbb")
	require.True(t, ok)
	require.Equal(t, StateConnected, state)
	require.Equal(t, 1, h.manager.Len())
}

func TestHandleAnswerFinishesCallerPath(t *testing.T) {
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("bbb"))

	require.NoError(t, h.manager.HandleAnswer(answerEvent(t, "bbb", "aaa")))

	state, _ := h.manager.LinkState("bbb")
	require.Equal(t, StateAnswered, state)
	require.True(t, h.lastTransport().remoteSet)
}

func TestHandleAnswerUnknownPeer(t *testing.T) {
	h := newHarness(t, "aaa")
	err := h.manager.HandleAnswer(answerEvent(t, "bbb", "aaa"))
	require.ErrorIs(t, err, ErrUnknownPeer)
}

func TestCandidateBeforeOfferIsBuffered(t *testing.T) {
	h := newHarness(t, "bbb")

	require.NoError(t, h.manager.HandleCandidate(candidateEvent(t, "aaa", "bbb", "candidate:1")))
	require.False(t, h.manager.HasLink("aaa"))

	// The offer arrives; the buffered candidate must be applied.
	require.NoError(t, h.manager.HandleOffer(offerEvent(t, "aaa", "bbb")))

	tp := h.lastTransport()
	require.Len(t, tp.candidates, 1)
	require.Equal(t, "candidate:1", tp.candidates[0].Candidate)
}

func TestCandidateBeforeAnswerIsBuffered(t *testing.T) {
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("bbb"))
	tp := h.lastTransport()

	// Caller has no remote description until the answer lands.
	require.NoError(t, h.manager.HandleCandidate(candidateEvent(t, "bbb", "aaa", "candidate:2")))
	require.Empty(t, tp.candidates)

	require.NoError(t, h.manager.HandleAnswer(answerEvent(t, "bbb", "aaa")))
	require.Len(t, tp.candidates, 1)
}

func TestReplaceVideoTrackDoesNotRenegotiate(t *testing.T) {
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("bbb"))
	require.NoError(t, h.manager.Call("ccc"))
	sentBefore := len(h.sent)

	replacement := newStaticTrack(t, webrtc.RTPCodecTypeVideo)
	require.NoError(t, h.manager.ReplaceVideoTrack(replacement.Local()))

	// Every link's video sender swapped in place, no new signaling.
	for _, tp := range h.transports {
		var videoSender *fakeSender
		for _, s := range tp.senders {
			if s.kind == webrtc.RTPCodecTypeVideo {
				videoSender = s
			}
		}
		require.NotNil(t, videoSender)
		require.Len(t, videoSender.replaced, 1)
	}
	require.Len(t, h.sent, sentBefore)
}

func TestClosePeerDropsLinkAndStream(t *testing.T) {
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("bbb"))
	h.store.Set("bbb", &streams.RemoteStream{PeerID: "bbb"})

	h.manager.ClosePeer("bbb")

	require.False(t, h.manager.HasLink("bbb"))
	require.True(t, h.lastTransport().closed)
	_, ok := h.store.Get("bbb")
	require.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t, "aaa")
	require.NoError(t, h.manager.Call("bbb"))
	require.NoError(t, h.manager.Call("ccc"))

	h.manager.CloseAll()

	require.Equal(t, 0, h.manager.Len())
	for _, tp := range h.transports {
		require.True(t, tp.closed)
	}
}

func TestRemoteControlChannelAttachesOnActor(t *testing.T) {
	h := newHarness(t, "bbb")
	require.NoError(t, h.manager.HandleOffer(offerEvent(t, "aaa", "bbb")))

	dc := &fakeDataChannel{label: ControlChannelLabel}
	h.lastTransport().onDC(dc)

	// The transport callback only reports the channel; the link is not
	// touched until the notification is fed back.
	require.Nil(t, h.manager.links["aaa"].control)

	var ev Event
	select {
	case ev = <-h.manager.Events():
	default:
		t.Fatal("expected a control-open notification")
	}
	require.Equal(t, EventControlOpen, ev.Kind)
	require.Equal(t, "aaa", ev.PeerID)

	h.manager.AttachControl(ev.PeerID, ev.Control)
	require.NotNil(t, h.manager.links["aaa"].control)

	h.manager.SendSpeaking(true)
	require.NotEmpty(t, dc.sent)
}

func TestAttachControlForGonePeerClosesChannel(t *testing.T) {
	h := newHarness(t, "bbb")
	dc := &fakeDataChannel{label: ControlChannelLabel}

	h.manager.AttachControl("aaa", dc)
	require.True(t, dc.closed)
}

func TestDataChannelWithOtherLabelIgnored(t *testing.T) {
	h := newHarness(t, "bbb")
	require.NoError(t, h.manager.HandleOffer(offerEvent(t, "aaa", "bbb")))

	h.lastTransport().onDC(&fakeDataChannel{label: "files"})

	select {
	case ev := <-h.manager.Events():
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}

func TestMeshErrorUnwraps(t *testing.T) {
	err := NewError("call", "bbb", ErrDuplicateConnection)
	require.True(t, errors.Is(err, ErrDuplicateConnection))
	require.Contains(t, err.Error(), "bbb")
}
