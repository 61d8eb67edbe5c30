package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	rtcmedia "github.com/pion/webrtc/v3/pkg/media"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/control"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/media"
)

const (
	trackRate     = 48000
	trackChannels = 1
	maxFrameSize  = 5760 // 120ms at 48kHz, the largest Opus frame
)

// Client drives one peer connection: local capture out, remote audio and
// control events in. A Client handles one attempt at a time; after
// Disconnect or a failure it can be reused for a fresh Connect.
type Client struct {
	cfg    Config
	source media.Source
	sink   media.Sink
	neg    Negotiator
	ch     *control.Channel

	mu         sync.Mutex
	state      State
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	sendCancel context.CancelFunc

	onState       func(State)
	onRemoteAudio func(media.Chunk)
	onLocalAudio  func(media.Chunk)
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the peer-connection configuration.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithSink routes decoded remote audio to a playback sink.
func WithSink(s media.Sink) Option {
	return func(c *Client) { c.sink = s }
}

// NewClient builds a Client around a capture source, a negotiator, and the
// control channel that will ride the peer connection's data channel.
func NewClient(source media.Source, neg Negotiator, ch *control.Channel, opts ...Option) *Client {
	c := &Client{
		source: source,
		neg:    neg,
		ch:     ch,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Channel returns the control channel bound to the data channel.
func (c *Client) Channel() *control.Channel {
	return c.ch
}

// OnStateChange registers an observer for state transitions.
// Must be set before Connect.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnRemoteAudio registers an observer for decoded remote audio chunks.
// Must be set before Connect.
func (c *Client) OnRemoteAudio(fn func(media.Chunk)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemoteAudio = fn
}

// OnLocalAudio registers an observer for captured microphone chunks.
// Must be set before Connect.
func (c *Client) OnLocalAudio(fn func(media.Chunk)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLocalAudio = fn
}

// Connect runs the full handshake and blocks until the remote answer is
// applied or a step fails. On any failure the client is torn down exactly as
// Disconnect would leave it, with state StateFailed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateDisconnected, StateFailed:
	default:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateAcquiringMedia
	notify := c.onState
	c.mu.Unlock()
	if notify != nil {
		notify(StateAcquiringMedia)
	}

	if err := c.source.Start(ctx); err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrMediaDenied, err))
	}

	pc, err := webrtc.NewPeerConnection(c.cfg.webrtcConfiguration())
	if err != nil {
		return c.fail(fmt.Errorf("peer connection: %w", err))
	}
	c.mu.Lock()
	c.pc = pc
	c.mu.Unlock()

	pc.OnConnectionStateChange(c.handleTransportState)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.handleRemoteTrack(track)
	})

	// The data channel must exist before the offer so it is negotiated in
	// the initial exchange.
	dc, err := pc.CreateDataChannel(ChannelLabel, nil)
	if err != nil {
		return c.fail(fmt.Errorf("data channel: %w", err))
	}
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()
	c.bindDataChannel(dc)

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: trackRate,
		Channels:  trackChannels,
	}, "audio", "avatar-mic")
	if err != nil {
		return c.fail(fmt.Errorf("local track: %w", err))
	}
	if _, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		return c.fail(fmt.Errorf("transceiver: %w", err))
	}

	sendCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.sendCancel = cancel
	c.mu.Unlock()
	go c.sendLoop(sendCtx, track)

	c.setState(StateCreatingOffer)
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return c.fail(fmt.Errorf("create offer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return c.fail(fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return c.fail(ctx.Err())
	}

	c.setState(StateAwaitingCredential)
	answer, err := c.neg.Negotiate(ctx, pc.LocalDescription().SDP)
	if err != nil {
		return c.fail(err)
	}

	c.setState(StateAwaitingRemoteAnswer)
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return c.fail(fmt.Errorf("set remote description: %w", err))
	}

	c.setState(StateConnected)
	log.Info("signaling connected")
	return nil
}

// Disconnect tears down the session. Safe to call repeatedly and from any
// state; extra calls are no-ops.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateDisconnected || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.teardown()
	c.setState(StateDisconnected)
	return nil
}

// fail tears down whatever the handshake built so far, moves to StateFailed,
// and returns the error unchanged so callers can inspect it.
func (c *Client) fail(err error) error {
	log.Error("signaling failed", "error", err)
	c.teardown()
	c.setState(StateFailed)
	return err
}

func (c *Client) teardown() {
	c.mu.Lock()
	pc := c.pc
	dc := c.dc
	cancel := c.sendCancel
	c.pc = nil
	c.dc = nil
	c.sendCancel = nil
	c.mu.Unlock()

	c.ch.Close()
	if dc != nil {
		_ = dc.Close()
	}
	// The OnClose callback never fires for a channel that was still
	// negotiating, so complete the transition here.
	c.ch.HandleClose()
	if cancel != nil {
		cancel()
	}
	if err := c.source.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("source stop", "error", err)
	}
	if c.sink != nil {
		_ = c.sink.Stop()
	}
	if pc != nil {
		_ = pc.Close()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// handleTransportState watches the ICE/DTLS transport after the handshake.
// A failure on a live session is surfaced as StateFailed; everything else is
// driven by Connect and Disconnect.
func (c *Client) handleTransportState(s webrtc.PeerConnectionState) {
	log.Debug("peer connection state", "state", s.String())
	if s != webrtc.PeerConnectionStateFailed {
		return
	}
	c.mu.Lock()
	live := c.state == StateConnected
	c.mu.Unlock()
	if live {
		c.teardown()
		c.setState(StateFailed)
	}
}

// dcSender adapts a WebRTC data channel to the control channel's transport.
type dcSender struct {
	dc *webrtc.DataChannel
}

func (s dcSender) Send(data []byte) error {
	return s.dc.SendText(string(data))
}

func (c *Client) bindDataChannel(dc *webrtc.DataChannel) {
	c.ch.Bind(dcSender{dc: dc})
	dc.OnOpen(func() {
		if err := c.ch.HandleOpen(); err != nil {
			log.Error("control channel open", "error", err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.ch.HandleMessage(msg.Data)
	})
	dc.OnClose(func() {
		c.ch.HandleClose()
	})
	dc.OnError(func(err error) {
		c.ch.HandleError(err)
	})
}

// sendLoop encodes captured chunks and writes them to the outbound track.
func (c *Client) sendLoop(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	enc, err := opus.NewEncoder(trackRate, trackChannels, opus.AppVoIP)
	if err != nil {
		log.Error("opus encoder", "error", err)
		return
	}
	buf := make([]byte, 1400)

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-c.source.Stream():
			if !ok {
				return
			}
			c.mu.Lock()
			fn := c.onLocalAudio
			c.mu.Unlock()
			if fn != nil {
				fn(chunk)
			}

			samples := chunk.Samples
			if chunk.Channels == 2 {
				samples = media.StereoToMono(samples)
			}
			if chunk.SampleRate != trackRate {
				samples = media.Resample(samples, chunk.SampleRate, trackRate)
			}
			if len(samples) == 0 {
				continue
			}

			n, err := enc.Encode(samples, buf)
			if err != nil {
				log.Warn("opus encode", "error", err)
				continue
			}
			dur := time.Duration(len(samples)) * time.Second / trackRate
			if err := track.WriteSample(rtcmedia.Sample{Data: buf[:n], Duration: dur}); err != nil {
				log.Debug("write sample", "error", err)
			}
		}
	}
}

// handleRemoteTrack decodes the inbound Opus stream and fans it out to the
// remote-audio observer and the playback sink.
func (c *Client) handleRemoteTrack(track *webrtc.TrackRemote) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		log.Debug("ignoring non-audio track", "kind", track.Kind().String())
		return
	}
	log.Info("remote audio track", "codec", track.Codec().MimeType)

	if c.sink != nil {
		if err := c.sink.Start(context.Background()); err != nil {
			log.Warn("playback start", "error", err)
		}
	}

	go func() {
		dec, err := opus.NewDecoder(trackRate, trackChannels)
		if err != nil {
			log.Error("opus decoder", "error", err)
			return
		}
		pcm := make([]int16, maxFrameSize)
		var pkt *rtp.Packet
		for {
			pkt, _, err = track.ReadRTP()
			if err != nil {
				log.Debug("remote track closed", "error", err)
				return
			}
			if len(pkt.Payload) == 0 {
				continue
			}
			n, err := dec.Decode(pkt.Payload, pcm)
			if err != nil {
				log.Debug("opus decode", "error", err)
				continue
			}

			chunk := media.Chunk{
				Samples:    append([]int16(nil), pcm[:n]...),
				SampleRate: trackRate,
				Channels:   trackChannels,
			}
			c.mu.Lock()
			fn := c.onRemoteAudio
			c.mu.Unlock()
			if fn != nil {
				fn(chunk)
			}
			if c.sink != nil {
				if err := c.sink.Write(context.Background(), chunk); err != nil {
					log.Debug("playback write", "error", err)
				}
			}
		}
	}()
}
