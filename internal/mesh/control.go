package mesh

import (
	"sync"
	"time"

	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
)

// ControlChannelLabel names the per-link data channel carrying quality
// probes and speaking status alongside the media tracks.
const ControlChannelLabel = "meshmeet-ctl"

const (
	probeInterval = 3 * time.Second

	qualityGoodMax   = 150 * time.Millisecond
	qualityMediumMax = 400 * time.Millisecond
)

// LinkQuality is derived from control-channel round trips.
type LinkQuality string

const (
	QualityGood   LinkQuality = "good"
	QualityMedium LinkQuality = "medium"
	QualityPoor   LinkQuality = "poor"
)

const (
	framePing     = "ping"
	framePong     = "pong"
	frameSpeaking = "speaking"
)

// controlFrame is the msgpack wire format on the control channel.
type controlFrame struct {
	Kind     string `msgpack:"kind"`
	Seq      uint32 `msgpack:"seq"`
	SentAtMS int64  `msgpack:"sent_at_ms"`
	Speaking bool   `msgpack:"speaking,omitempty"`
}

// controlChannel probes one link with periodic pings, classifies the RTT
// into a LinkQuality, and relays speaking status.
type controlChannel struct {
	peerID string
	dc     DataChannel

	onQuality  func(peerID string, q LinkQuality)
	onSpeaking func(peerID string, speaking bool)

	mu      sync.Mutex
	seq     uint32
	pending map[uint32]time.Time

	done     chan struct{}
	stopOnce sync.Once
}

func newControlChannel(peerID string, dc DataChannel, onQuality func(string, LinkQuality), onSpeaking func(string, bool)) *controlChannel {
	cc := &controlChannel{
		peerID:     peerID,
		dc:         dc,
		onQuality:  onQuality,
		onSpeaking: onSpeaking,
		pending:    make(map[uint32]time.Time),
		done:       make(chan struct{}),
	}

	dc.OnMessage(cc.handleMessage)
	dc.OnOpen(func() {
		go cc.probeLoop()
	})

	return cc
}

func (cc *controlChannel) probeLoop() {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cc.done:
			return
		case <-ticker.C:
			cc.sendPing()
		}
	}
}

func (cc *controlChannel) sendPing() {
	cc.mu.Lock()
	cc.seq++
	seq := cc.seq
	cc.pending[seq] = time.Now()
	// drop stale probes so a dead link does not grow the map
	for s, at := range cc.pending {
		if time.Since(at) > 10*probeInterval {
			delete(cc.pending, s)
		}
	}
	cc.mu.Unlock()

	cc.send(controlFrame{Kind: framePing, Seq: seq, SentAtMS: time.Now().UnixMilli()})
}

// SendSpeaking relays the local speaking flag to the remote side.
func (cc *controlChannel) SendSpeaking(speaking bool) {
	cc.send(controlFrame{Kind: frameSpeaking, Speaking: speaking, SentAtMS: time.Now().UnixMilli()})
}

func (cc *controlChannel) send(frame controlFrame) {
	b, err := msgpack.Marshal(frame)
	if err != nil {
		return
	}
	if err := cc.dc.Send(b); err != nil {
		slog.Debug("control send failed", "peer", cc.peerID, "err", err)
	}
}

func (cc *controlChannel) handleMessage(data []byte) {
	var frame controlFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		slog.Debug("bad control frame", "peer", cc.peerID, "err", err)
		return
	}

	switch frame.Kind {
	case framePing:
		cc.send(controlFrame{Kind: framePong, Seq: frame.Seq, SentAtMS: frame.SentAtMS})

	case framePong:
		cc.mu.Lock()
		sent, ok := cc.pending[frame.Seq]
		delete(cc.pending, frame.Seq)
		cc.mu.Unlock()
		if ok && cc.onQuality != nil {
			cc.onQuality(cc.peerID, classifyRTT(time.Since(sent)))
		}

	case frameSpeaking:
		if cc.onSpeaking != nil {
			cc.onSpeaking(cc.peerID, frame.Speaking)
		}
	}
}

func (cc *controlChannel) stop() {
	cc.stopOnce.Do(func() {
		close(cc.done)
		_ = cc.dc.Close()
	})
}

func classifyRTT(rtt time.Duration) LinkQuality {
	switch {
	case rtt <= qualityGoodMax:
		return QualityGood
	case rtt <= qualityMediumMax:
		return QualityMedium
	default:
		return QualityPoor
	}
}
