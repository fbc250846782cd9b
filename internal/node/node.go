// Package node wires every mesh core subsystem (identity, contacts,
// Noise sessions, handshake, spam/relay policy, offline queue, relay
// engine, gossip sync, routing gate, and a bound transport) into one
// running daemon, the way agent.Agent wires VL1/VL2/TAP.
package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2s"

	"github.com/meshline/meshcore/internal/config"
	"github.com/meshline/meshcore/internal/contact"
	"github.com/meshline/meshcore/internal/gossip"
	"github.com/meshline/meshcore/internal/handshake"
	"github.com/meshline/meshcore/internal/identity"
	"github.com/meshline/meshcore/internal/noise"
	"github.com/meshline/meshcore/internal/policy"
	"github.com/meshline/meshcore/internal/protocol"
	"github.com/meshline/meshcore/internal/queue"
	"github.com/meshline/meshcore/internal/relay"
	"github.com/meshline/meshcore/internal/routing"
	"github.com/meshline/meshcore/internal/store"
	"github.com/meshline/meshcore/internal/transport"
)

// Node is the mesh core daemon: one identity, one durable store, and
// every subsystem that identity's messages pass through on the way in
// or out.
type Node struct {
	cfg       *config.NodeConfig
	identity  *identity.Identity
	store     *store.Store
	transport transport.Transport

	contacts   *contact.Store
	sessions   *noise.Manager
	handshake  *handshake.Coordinator
	spam       *policy.SpamPolicy
	relayCfg   *policy.RelayConfig
	queue      *queue.Queue
	relay      *relay.Engine
	gossip     *gossip.Manager
	gate       *routing.Gate

	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	peersMu sync.Mutex
	peers   map[string]struct{}
}

// New loads or generates the node's identity, opens its durable store,
// and assembles every subsystem bound to tr. Start must be called
// before the node processes any traffic.
func New(cfg *config.NodeConfig, tr transport.Transport, log *slog.Logger) (*Node, error) {
	if log == nil {
		log = slog.Default()
	}

	id, err := identity.LoadOrGenerate(cfg.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	log.Info("identity loaded", "address", id.Address, "pubkey", id.PublicKeyHex()[:16]+"...")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	self := id.PublicKeyHex()
	contacts := contact.New(store.NewContactBackend(st))
	q := queue.New(store.NewQueueBackend(st), tr)
	sessions := noise.NewManager()
	spam := policy.NewDefaultSpamPolicy()
	relayCfg := policy.NewRelayConfig()
	relayCfg.SetMaxRelayHops(cfg.MaxRelayHops)
	relayCfg.SetBatteryThreshold(cfg.BatteryThreshold)
	if cfg.RelayEnabled {
		relayCfg.Enable()
	} else {
		relayCfg.Disable()
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:       cfg,
		identity:  id,
		store:     st,
		transport: tr,
		contacts:  contacts,
		sessions:  sessions,
		spam:      spam,
		relayCfg:  relayCfg,
		queue:     q,
		gate:      routing.New(self),
		log:       log.With("component", "node", "address", id.Address.String()),
		ctx:       ctx,
		cancel:    cancel,
		peers:     make(map[string]struct{}),
	}

	n.relay = relay.New(self, relayCfg, spam, q, n.onDeliverMessage)
	n.gossip = gossip.New(self, q, n.sendGossipFrame)

	psk := pskFromPairingCode(cfg.PairingCode)
	n.handshake = handshake.New(id.PrivateKey, id.PublicKey, psk, tr, sessions, n.onHandshakeSuccess, log)
	n.handshake.DisplayName = func(peer string) string { return "" }

	tr.Bind(transport.Handlers{
		OnReceive:          n.handleReceive,
		OnPeerConnected:    n.handlePeerConnected,
		OnPeerDisconnected: n.handlePeerDisconnected,
	})

	return n, nil
}

// pskFromPairingCode derives the handshake's pre-shared key from an
// operator-entered pairing code, or the zero key for code-free pairing.
func pskFromPairingCode(code string) [32]byte {
	if code == "" {
		return [32]byte{}
	}
	return blake2s.Sum256([]byte(code))
}

// Start warms the contact cache, launches the gossip manager's
// maintenance loop, and begins the node's own retry/prune ticker.
func (n *Node) Start() error {
	if err := n.contacts.Warm(n.ctx); err != nil {
		return fmt.Errorf("warm contacts: %w", err)
	}
	n.gossip.Start(n.ctx)

	n.wg.Add(1)
	go n.maintenanceLoop()
	return nil
}

// Stop halts the maintenance loop and the gossip manager, then closes
// the durable store.
func (n *Node) Stop() error {
	n.cancel()
	n.wg.Wait()
	n.gossip.Stop()
	return n.store.Close()
}

// Identity returns the node's own identity.
func (n *Node) Identity() *identity.Identity { return n.identity }

// RelayConfig exposes the tunable relay config, e.g. for the admin API.
func (n *Node) RelayConfig() *policy.RelayConfig { return n.relayCfg }

// Contacts exposes the contact store, e.g. for the admin API.
func (n *Node) Contacts() *contact.Store { return n.contacts }

// Queue exposes the offline queue, e.g. for the admin API.
func (n *Node) Queue() *queue.Queue { return n.queue }

// Relay exposes the relay engine's statistics, e.g. for the admin API.
func (n *Node) Relay() *relay.Engine { return n.relay }

// SendMessage enqueues content for recipientPK, encrypting it directly
// if an established Noise session already exists; otherwise it is
// wrapped as a mesh relay frame so the relay engine can carry it
// multiple hops once a route becomes available. Returns the generated
// message_id.
func (n *Node) SendMessage(ctx context.Context, chatID, recipientPK string, content []byte, priority queue.Priority) (string, error) {
	messageID := uuid.New().String()
	self := n.identity.PublicKeyHex()

	if n.sessions.State(recipientPK) == noise.SessionEstablished {
		ciphertext, err := n.sessions.Encrypt(recipientPK, content)
		if err == nil {
			return n.queue.Enqueue(ctx, chatID, ciphertext, recipientPK, self, priority, messageID, relay.HashContent(content))
		}
		n.log.Warn("direct encrypt failed, falling back to relay wrap", "peer", recipientPK, "error", err)
	}

	wrapped := n.relay.CreateOutgoingRelay(messageID, content, recipientPK, priority)
	payload, err := json.Marshal(wrapped)
	if err != nil {
		return "", fmt.Errorf("marshal outgoing relay message: %w", err)
	}
	frame := protocol.NewFrame(protocol.MsgMeshRelay, payload)
	encoded, err := frame.Encode()
	if err != nil {
		return "", fmt.Errorf("encode outgoing relay frame: %w", err)
	}
	return n.queue.Enqueue(ctx, chatID, encoded, recipientPK, self, priority, messageID, wrapped.Metadata.MessageHash)
}

func (n *Node) maintenanceLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.spam.Prune()
			n.flushKnownPeers()
		}
	}
}

func (n *Node) flushKnownPeers() {
	n.peersMu.Lock()
	peers := make([]string, 0, len(n.peers))
	for p := range n.peers {
		peers = append(peers, p)
	}
	n.peersMu.Unlock()

	for _, p := range peers {
		if _, err := n.queue.FlushForPeer(n.ctx, p); err != nil {
			n.log.Warn("flush queue failed", "peer", p, "error", err)
		}
	}
}

func (n *Node) handlePeerConnected(peer transport.PeerID) {
	n.peersMu.Lock()
	n.peers[string(peer)] = struct{}{}
	n.peersMu.Unlock()

	if _, err := n.contacts.Observe(n.ctx, string(peer)); err != nil {
		n.log.Warn("observe contact failed", "peer", peer, "error", err)
	}
	if err := n.handshake.Start(n.ctx, string(peer)); err != nil {
		n.log.Warn("handshake start failed", "peer", peer, "error", err)
	}
}

func (n *Node) handlePeerDisconnected(peer transport.PeerID) {
	n.peersMu.Lock()
	delete(n.peers, string(peer))
	n.peersMu.Unlock()
	n.handshake.OnPeerDisconnected(string(peer))
}

// handleReceive is the transport's single inbound entry point. It
// decodes the frame, dispatches handshake traffic to the coordinator,
// then applies the routing gate against the sender/recipient the
// decoded payload actually names before handing off to the relay
// engine or a direct delivery.
func (n *Node) handleReceive(peer transport.PeerID, raw []byte) {
	frame, err := protocol.DecodeFrame(raw)
	if err != nil {
		n.log.Warn("decode frame failed", "peer", peer, "error", err)
		return
	}

	if handled, err := n.handshake.OnReceived(n.ctx, string(peer), frame.Header.Type, frame.Payload); handled {
		if err != nil {
			n.log.Warn("handshake step failed", "peer", peer, "error", err)
		}
		return
	}

	switch frame.Header.Type {
	case protocol.MsgTextMessage:
		if !n.admitFrame(peer, string(peer), "", true) {
			return
		}
		n.handleDirectMessage(peer, frame.Payload)
	case protocol.MsgMeshRelay:
		var msg relay.MeshRelayMessage
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			n.log.Warn("unmarshal mesh relay failed", "peer", peer, "error", err)
			return
		}
		if !n.admitFrame(peer, msg.Metadata.OriginalSender, msg.Metadata.FinalRecipient, false) {
			return
		}
		n.handleMeshRelay(peer, msg)
	case protocol.MsgRelayAck:
		if !n.admitFrame(peer, string(peer), "", false) {
			return
		}
		n.handleRelayAck(peer, frame.Payload)
	case protocol.MsgQueueSync:
		var req gossip.SyncRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			n.log.Warn("unmarshal queue sync failed", "peer", peer, "error", err)
			return
		}
		if !n.admitFrame(peer, req.NodeID, "", false) {
			return
		}
		n.handleQueueSync(peer, req)
	default:
		n.log.Debug("unhandled frame type", "peer", peer, "type", frame.Header.Type)
	}
}

// admitFrame applies the routing gate to one inbound frame, logging and
// reporting rejection so callers can bail out without duplicating the
// drop-and-log boilerplate.
func (n *Node) admitFrame(peer transport.PeerID, senderPublicKey, intendedRecipient string, isEncryptedDirect bool) bool {
	verdict := n.gate.Evaluate(senderPublicKey, intendedRecipient, isEncryptedDirect)
	if !verdict.Accept {
		n.log.Debug("routing gate dropped frame", "peer", peer, "sender", senderPublicKey, "reason", verdict.Reason)
		return false
	}
	return true
}

func (n *Node) handleDirectMessage(peer transport.PeerID, ciphertext []byte) {
	plaintext, err := n.sessions.Decrypt(string(peer), ciphertext)
	if err != nil {
		n.log.Warn("decrypt direct message failed", "peer", peer, "error", err)
		return
	}
	n.onDeliverMessage(string(peer), plaintext)
}

func (n *Node) handleMeshRelay(peer transport.PeerID, msg relay.MeshRelayMessage) {
	decision, err := n.relay.ProcessIncomingRelay(n.ctx, msg, string(peer), n.connectedPeers())
	if err != nil {
		n.log.Warn("process mesh relay failed", "peer", peer, "error", err)
		return
	}
	if decision.Kind == relay.DecisionDropped {
		n.log.Debug("relay frame dropped", "peer", peer, "reason", decision.Reason)
	}
	n.gossip.TrackPublicMessage(msg.OriginalMessageID, msg, gossip.KindAnnounce)
}

func (n *Node) handleRelayAck(peer transport.PeerID, payload []byte) {
	var ack relay.AckFrame
	if err := json.Unmarshal(payload, &ack); err != nil {
		n.log.Warn("unmarshal relay ack failed", "peer", peer, "error", err)
		return
	}
	if _, err := n.relay.ProcessIncomingAck(n.ctx, ack.OriginalMessageID, ack.AckRoutingPath); err != nil {
		n.log.Warn("process relay ack failed", "peer", peer, "error", err)
	}
}

func (n *Node) handleQueueSync(peer transport.PeerID, req gossip.SyncRequest) {
	if _, err := n.gossip.HandleSyncRequest(n.ctx, string(peer), req); err != nil {
		n.log.Warn("handle queue sync failed", "peer", peer, "error", err)
	}
}

func (n *Node) connectedPeers() []string {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	out := make([]string, 0, len(n.peers))
	for p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Node) sendGossipFrame(ctx context.Context, peer string, payload []byte) {
	frame := protocol.NewFrame(protocol.MsgQueueSync, payload)
	encoded, err := frame.Encode()
	if err != nil {
		n.log.Warn("encode gossip frame failed", "error", err)
		return
	}
	if _, err := n.transport.Send(ctx, transport.PeerID(peer), encoded); err != nil {
		n.log.Warn("send gossip frame failed", "peer", peer, "error", err)
	}
}

// onDeliverMessage is invoked for every payload ultimately addressed to
// this node, whether received directly or via relay.
func (n *Node) onDeliverMessage(messageID string, content []byte) {
	n.log.Info("message delivered", "message_id", messageID, "bytes", len(content))
}

// onHandshakeSuccess records the new Noise session against the
// contact store, satisfying the invariant that noise_public_key and
// noise_session_state=established always change together.
func (n *Node) onHandshakeSuccess(peer string, displayName string, noisePublicKey [32]byte) {
	if _, err := n.contacts.CompleteHandshake(n.ctx, peer, displayName, noisePublicKey[:]); err != nil {
		n.log.Warn("complete handshake contact update failed", "peer", peer, "error", err)
		return
	}
	n.log.Info("handshake established", "peer", peer, "remote_static", hex.EncodeToString(noisePublicKey[:8]))
}
