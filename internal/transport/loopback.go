package transport

import (
	"context"
	"fmt"
	"sync"
)

// Hub is an in-memory switchboard connecting LoopbackTransport instances
// by PeerID, standing in for the BLE radio in tests and the demo harness.
// It does not implement range/visibility — any two nodes registered on
// the same Hub can always reach each other directly, which is sufficient
// to drive the queue/relay/gossip state machines without a real radio.
type Hub struct {
	mu    sync.Mutex
	nodes map[PeerID]*LoopbackTransport
}

// NewHub creates an empty switchboard.
func NewHub() *Hub {
	return &Hub{nodes: make(map[PeerID]*LoopbackTransport)}
}

// Join registers a node under id and returns its transport. Joining
// fires no events; Connect announces peers to each other.
func (h *Hub) Join(id PeerID) *LoopbackTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &LoopbackTransport{id: id, hub: h}
	h.nodes[id] = t
	return t
}

// Leave removes a node from the switchboard and notifies its peers.
func (h *Hub) Leave(id PeerID) {
	h.mu.Lock()
	t, ok := h.nodes[id]
	if ok {
		delete(h.nodes, id)
	}
	peers := h.peersLocked(id)
	h.mu.Unlock()
	if !ok {
		return
	}
	for _, p := range peers {
		if p.handlers.OnPeerDisconnected != nil {
			p.handlers.OnPeerDisconnected(id)
		}
	}
	if t.handlers.OnPeerDisconnected != nil {
		// no-op for self; nodes don't get a disconnect event about themselves
		_ = t
	}
}

func (h *Hub) peersLocked(exclude PeerID) []*LoopbackTransport {
	out := make([]*LoopbackTransport, 0, len(h.nodes))
	for id, t := range h.nodes {
		if id != exclude {
			out = append(out, t)
		}
	}
	return out
}

// Connect announces a and b to each other, firing OnPeerConnected both
// ways; no other joined node is notified. Call this after Bind
// on both sides to simulate the radio coming into range of a peer.
func (h *Hub) Connect(a, b PeerID) error {
	h.mu.Lock()
	ta, okA := h.nodes[a]
	tb, okB := h.nodes[b]
	h.mu.Unlock()
	if !okA || !okB {
		return fmt.Errorf("transport: unknown peer in connect(%s, %s)", a, b)
	}
	if ta.handlers.OnPeerConnected != nil {
		ta.handlers.OnPeerConnected(b)
	}
	if tb.handlers.OnPeerConnected != nil {
		tb.handlers.OnPeerConnected(a)
	}
	return nil
}

// Disconnect fires OnPeerDisconnected on both sides without removing
// either node from the hub (they can reconnect later).
func (h *Hub) Disconnect(a, b PeerID) {
	h.mu.Lock()
	ta, okA := h.nodes[a]
	tb, okB := h.nodes[b]
	h.mu.Unlock()
	if okA && ta.handlers.OnPeerDisconnected != nil {
		ta.handlers.OnPeerDisconnected(b)
	}
	if okB && tb.handlers.OnPeerDisconnected != nil {
		tb.handlers.OnPeerDisconnected(a)
	}
}

// LoopbackTransport is a Hub-backed Transport for one node.
type LoopbackTransport struct {
	id       PeerID
	hub      *Hub
	mu       sync.Mutex
	handlers Handlers
	closed   bool
}

// Bind registers the inbound handlers.
func (t *LoopbackTransport) Bind(h Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = h
}

// Send delivers frame to peer via the hub, running the receiving handler
// on its own goroutine, and reports acceptance on the returned future. Delivery to an unknown or departed
// peer resolves with an error, mirroring a real transport's unreachable
// peer failure.
func (t *LoopbackTransport) Send(ctx context.Context, peer PeerID, frame []byte) (AckFuture, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("transport: %s is closed", t.id)
	}

	t.hub.mu.Lock()
	dst, ok := t.hub.nodes[peer]
	t.hub.mu.Unlock()

	ch := make(chan error, 1)
	if !ok {
		ch <- fmt.Errorf("transport: peer %s unreachable", peer)
		close(ch)
		return ch, nil
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)
	go func() {
		dst.mu.Lock()
		handler := dst.handlers.OnReceive
		dst.mu.Unlock()
		if handler != nil {
			handler(t.id, cp)
		}
	}()
	close(ch)
	return ch, nil
}

// Close marks the transport as closed; further Sends fail.
func (t *LoopbackTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
