// Package handshake drives the three-phase Noise handshake protocol
// state machine over the transport boundary, turning raw
// noise_handshake_{1,2,3} frames into an established noise.Manager
// session and a one-shot success callback.
package handshake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meshline/meshcore/internal/meshcore"
	"github.com/meshline/meshcore/internal/noise"
	"github.com/meshline/meshcore/internal/protocol"
	"github.com/meshline/meshcore/internal/transport"
)

// Phase names the position in the per-peer state machine. Both
// initiator and responder progress through the same phase count —
// the number of handshake messages this side has sent or consumed —
// the spec's "idle -> sent1 -> sent2 -> sent3 -> established" mirrors
// naturally onto "0 -> 1 -> 2 -> 3 -> established processed" either way.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSent1
	PhaseSent2
	PhaseSent3
	PhaseEstablished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSent1:
		return "sent1"
	case PhaseSent2:
		return "sent2"
	case PhaseSent3:
		return "sent3"
	case PhaseEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// SuccessFunc is invoked exactly once per idle->established transition.
type SuccessFunc func(peer string, displayName string, noisePublicKey [32]byte)

type peerState struct {
	hs           *noise.State
	phase        Phase
	initiator    bool
	successFired bool
}

// Coordinator owns the handshake state machine for every peer the
// node is currently pairing with or has paired with.
type Coordinator struct {
	localPriv [32]byte
	localPub  [32]byte
	psk       [32]byte

	sender   transport.Sender
	sessions *noise.Manager
	onSucc   SuccessFunc
	// DisplayName resolves a peer's display name for the success
	// callback; nil or empty-returning funcs yield an empty name.
	DisplayName func(peer string) string

	log *slog.Logger

	mu    sync.Mutex
	peers map[string]*peerState
}

// New creates a coordinator bound to a transport sender and session
// manager. psk is the pre-shared secret mixed into every handshake
// (a pairing-code hash, or the zero key when pairing is code-free).
func New(localPriv, localPub, psk [32]byte, sender transport.Sender, sessions *noise.Manager, onSuccess SuccessFunc, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		localPriv: localPriv,
		localPub:  localPub,
		psk:       psk,
		sender:    sender,
		sessions:  sessions,
		onSucc:    onSuccess,
		log:       log.With("component", "handshake"),
		peers:     make(map[string]*peerState),
	}
}

// Start begins a handshake as initiator. Concurrent/repeated Start
// calls for a peer already past idle are idempotent no-ops.
func (c *Coordinator) Start(ctx context.Context, peer string) error {
	c.mu.Lock()
	if ps, ok := c.peers[peer]; ok && ps.phase != PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	hs := noise.New(c.localPriv, c.localPub, c.psk, true)
	ps := &peerState{hs: hs, phase: PhaseIdle, initiator: true}
	c.peers[peer] = ps
	c.mu.Unlock()

	c.sessions.BeginHandshake(peer, hs)

	msg, err := hs.WriteMessage1()
	if err != nil {
		return meshcore.CryptoError("handshake.Start", err.Error())
	}
	c.mu.Lock()
	ps.phase = PhaseSent1
	c.mu.Unlock()
	if err := c.send(ctx, peer, protocol.MsgNoiseHandshake1, msg); err != nil {
		c.mu.Lock()
		ps.phase = PhaseIdle
		c.mu.Unlock()
		return err
	}
	return nil
}

// OnReceived processes an inbound frame. Frames whose type is not one
// of the noise_handshake_{1,2,3} kinds are not handshake traffic and
// are reported back as unhandled so the caller can route them elsewhere.
func (c *Coordinator) OnReceived(ctx context.Context, peer string, msgType protocol.MessageType, payload []byte) (handled bool, err error) {
	switch msgType {
	case protocol.MsgNoiseHandshake1:
		return true, c.handleMessage1(ctx, peer, payload)
	case protocol.MsgNoiseHandshake2:
		return true, c.handleMessage2(ctx, peer, payload)
	case protocol.MsgNoiseHandshake3:
		return true, c.handleMessage3(ctx, peer, payload)
	default:
		return false, nil
	}
}

func (c *Coordinator) handleMessage1(ctx context.Context, peer string, payload []byte) error {
	c.mu.Lock()
	ps, ok := c.peers[peer]
	if ok && ps.phase != PhaseIdle {
		c.mu.Unlock()
		c.dropToIdle(peer)
		return meshcore.ProtocolError("handshake.OnReceived", "handshake_mismatch")
	}
	hs := noise.New(c.localPriv, c.localPub, c.psk, false)
	ps = &peerState{hs: hs, phase: PhaseIdle, initiator: false}
	c.peers[peer] = ps
	c.mu.Unlock()

	if err := hs.ReadMessage1(payload); err != nil {
		c.dropToIdle(peer)
		return meshcore.ProtocolError("handshake.OnReceived", "handshake_mismatch")
	}
	c.sessions.BeginHandshake(peer, hs)

	c.mu.Lock()
	ps.phase = PhaseSent1
	c.mu.Unlock()

	msg2, err := hs.WriteMessage2()
	if err != nil {
		c.dropToIdle(peer)
		return meshcore.CryptoError("handshake.OnReceived", err.Error())
	}
	c.mu.Lock()
	ps.phase = PhaseSent2
	c.mu.Unlock()
	if err := c.send(ctx, peer, protocol.MsgNoiseHandshake2, msg2); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) handleMessage2(ctx context.Context, peer string, payload []byte) error {
	c.mu.Lock()
	ps, ok := c.peers[peer]
	if !ok || !ps.initiator || ps.phase != PhaseSent1 {
		c.mu.Unlock()
		c.dropToIdle(peer)
		return meshcore.ProtocolError("handshake.OnReceived", "handshake_mismatch")
	}
	hs := ps.hs
	c.mu.Unlock()

	if err := hs.ReadMessage2(payload); err != nil {
		c.dropToIdle(peer)
		return meshcore.ProtocolError("handshake.OnReceived", "handshake_mismatch")
	}

	c.mu.Lock()
	ps.phase = PhaseSent2
	c.mu.Unlock()

	msg3, err := hs.WriteMessage3()
	if err != nil {
		c.dropToIdle(peer)
		return meshcore.CryptoError("handshake.OnReceived", err.Error())
	}
	c.mu.Lock()
	ps.phase = PhaseSent3
	c.mu.Unlock()
	if err := c.send(ctx, peer, protocol.MsgNoiseHandshake3, msg3); err != nil {
		return err
	}

	return c.complete(peer, hs)
}

func (c *Coordinator) handleMessage3(ctx context.Context, peer string, payload []byte) error {
	c.mu.Lock()
	ps, ok := c.peers[peer]
	if !ok || ps.initiator || ps.phase != PhaseSent2 {
		c.mu.Unlock()
		c.dropToIdle(peer)
		return meshcore.ProtocolError("handshake.OnReceived", "handshake_mismatch")
	}
	hs := ps.hs
	c.mu.Unlock()

	if err := hs.ReadMessage3(payload); err != nil {
		c.dropToIdle(peer)
		return meshcore.ProtocolError("handshake.OnReceived", "handshake_mismatch")
	}

	c.mu.Lock()
	ps.phase = PhaseSent3
	c.mu.Unlock()

	return c.complete(peer, hs)
}

func (c *Coordinator) complete(peer string, hs *noise.State) error {
	if !hs.Complete() {
		return meshcore.ProtocolError("handshake.complete", "handshake not complete")
	}
	c.sessions.Establish(peer, hs)

	c.mu.Lock()
	ps := c.peers[peer]
	ps.phase = PhaseEstablished
	alreadyFired := ps.successFired
	ps.successFired = true
	c.mu.Unlock()

	if alreadyFired {
		return nil
	}

	remoteStatic, _ := hs.RemoteStaticKey()
	name := ""
	if c.DisplayName != nil {
		name = c.DisplayName(peer)
	}
	if c.onSucc != nil {
		c.onSucc(peer, name, remoteStatic)
	}
	return nil
}

// OnPeerDisconnected cancels any in-flight handshake for peer without
// firing success. An already-established session is left untouched —
// disconnect is a transport event, not a session teardown.
func (c *Coordinator) OnPeerDisconnected(peer string) {
	c.mu.Lock()
	ps, ok := c.peers[peer]
	if !ok || ps.phase == PhaseEstablished {
		c.mu.Unlock()
		return
	}
	delete(c.peers, peer)
	c.mu.Unlock()
	c.sessions.Clear(peer)
}

// Phase reports the current phase for peer (PhaseIdle if unknown).
func (c *Coordinator) Phase(peer string) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.peers[peer]; ok {
		return ps.phase
	}
	return PhaseIdle
}

func (c *Coordinator) dropToIdle(peer string) {
	c.mu.Lock()
	delete(c.peers, peer)
	c.mu.Unlock()
	c.sessions.Clear(peer)
	c.log.Warn("handshake dropped to idle", "peer", peer)
}

func (c *Coordinator) send(ctx context.Context, peer string, t protocol.MessageType, payload []byte) error {
	frame := protocol.NewFrame(t, payload)
	encoded, err := frame.Encode()
	if err != nil {
		return meshcore.ProtocolError("handshake.send", err.Error())
	}
	if _, err := c.sender.Send(ctx, transport.PeerID(peer), encoded); err != nil {
		return meshcore.TransportFailure(fmt.Sprintf("handshake.send(%s)", t), err)
	}
	return nil
}
