package signal

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	rtcmedia "github.com/pion/webrtc/v3/pkg/media"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/Bhuman-Patel/Talking-Avatar/pkg/media"
)

// loopbackNegotiator answers the offer with an in-process peer connection,
// standing in for the upstream provider. Once connected it streams an Opus
// tone back so the remote-audio path is exercised end to end.
type loopbackNegotiator struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
	stop  chan struct{}
	once  sync.Once
}

func newLoopbackNegotiator() *loopbackNegotiator {
	return &loopbackNegotiator{stop: make(chan struct{})}
}

func (n *loopbackNegotiator) Negotiate(ctx context.Context, offerSDP string) (string, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", err
	}
	n.pc = pc

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		return "", err
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  1,
	}, "audio", "answer-side")
	if err != nil {
		return "", err
	}
	n.track = track
	if _, err := pc.AddTrack(track); err != nil {
		return "", err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	go n.speak()
	return pc.LocalDescription().SDP, nil
}

// speak encodes a 440Hz tone onto the answering track, 20ms per frame.
func (n *loopbackNegotiator) speak() {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return
	}
	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}
	buf := make([]byte, 1400)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			nb, err := enc.Encode(pcm, buf)
			if err != nil {
				return
			}
			if err := n.track.WriteSample(rtcmedia.Sample{
				Data:     buf[:nb],
				Duration: 20 * time.Millisecond,
			}); err != nil {
				return
			}
		}
	}
}

func (n *loopbackNegotiator) Close() {
	n.once.Do(func() { close(n.stop) })
	if n.pc != nil {
		_ = n.pc.Close()
	}
}

func TestConnectReachesConnected(t *testing.T) {
	src := media.NewMockSource(mockCfg(), nil, media.WithSineWave(440, 0.4))
	defer src.Close()

	neg := newLoopbackNegotiator()
	defer neg.Close()

	ch := newTestChannel()
	c := NewClient(src, neg, ch, WithConfig(Config{ICEServers: []webrtc.ICEServer{}}))

	var mu sync.Mutex
	var states []State
	c.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	remote := make(chan media.Chunk, 1)
	c.OnRemoteAudio(func(chunk media.Chunk) {
		select {
		case remote <- chunk:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.State(); got != StateConnected {
		t.Fatalf("state after Connect = %v, want connected", got)
	}

	want := []State{
		StateAcquiringMedia,
		StateCreatingOffer,
		StateAwaitingCredential,
		StateAwaitingRemoteAnswer,
		StateConnected,
	}
	mu.Lock()
	got := append([]State(nil), states...)
	mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("state sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state sequence = %v, want %v", got, want)
		}
	}

	// The answering peer streams a tone; the decoded audio must reach the
	// remote-audio observer once the transport is up.
	select {
	case chunk := <-remote:
		if chunk.SampleRate != 48000 || chunk.Channels != 1 {
			t.Errorf("remote chunk format = %dHz/%dch, want 48000Hz/1ch",
				chunk.SampleRate, chunk.Channels)
		}
		if len(chunk.Samples) == 0 {
			t.Error("remote chunk carries no samples")
		}
	case <-time.After(15 * time.Second):
		t.Fatal("no remote audio delivered after connect")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state after Disconnect = %v, want disconnected", got)
	}
}
