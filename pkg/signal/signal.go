// Package signal establishes the peer connection that carries audio and the
// control data channel between the avatar client and the upstream realtime
// provider.
//
// The handshake is a strict sequence: acquire local media, create the
// connection and data channel, generate the offer, exchange it for an answer
// through a Negotiator, apply the remote description. Any failure before
// connected tears everything down exactly as Disconnect would, so a failed
// attempt never leaks tracks, channels, or connections.
package signal

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// State is the signaling client's handshake state.
type State int

const (
	// StateIdle means no connect attempt has been made.
	StateIdle State = iota
	// StateAcquiringMedia means microphone capture is being opened.
	StateAcquiringMedia
	// StateCreatingOffer means the local description is being generated.
	StateCreatingOffer
	// StateAwaitingCredential means the negotiation round-trip is in flight.
	StateAwaitingCredential
	// StateAwaitingRemoteAnswer means the remote description is being applied.
	StateAwaitingRemoteAnswer
	// StateConnected means the remote description was accepted. Transport
	// state changes observed afterward are reported, not returned.
	StateConnected
	// StateDisconnected is terminal for this attempt; reach it via Disconnect.
	StateDisconnected
	// StateFailed is terminal for this attempt; a fresh Connect may retry.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiringMedia"
	case StateCreatingOffer:
		return "creatingOffer"
	case StateAwaitingCredential:
		return "awaitingCredential"
	case StateAwaitingRemoteAnswer:
		return "awaitingRemoteAnswer"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Errors returned by Connect.
var (
	// ErrMediaDenied means microphone capture could not be opened. Fatal for
	// this attempt, fully recoverable by retrying.
	ErrMediaDenied = errors.New("signal: microphone access denied")

	// ErrAlreadyConnected means a connect attempt is live on this client.
	ErrAlreadyConnected = errors.New("signal: already connected")
)

// ChannelLabel is the data channel label the upstream expects.
const ChannelLabel = "oai-events"

// Config holds peer-connection parameters.
type Config struct {
	// ICEServers used for candidate gathering. Nil means DefaultICEServers.
	ICEServers []webrtc.ICEServer
}

// DefaultICEServers returns the public STUN fallback.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

func (c Config) webrtcConfiguration() webrtc.Configuration {
	servers := c.ICEServers
	if servers == nil {
		servers = DefaultICEServers()
	}
	return webrtc.Configuration{ICEServers: servers}
}
