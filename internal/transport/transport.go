// Package transport defines the byte-duplex boundary the mesh core
// consumes. The radio transport itself (BLE scanning/advertising/GATT)
// is out of scope; this package only describes the interface a concrete
// radio adapter must satisfy, plus a loopback implementation used by
// tests and the demo harness.
package transport

import "context"

// PeerID is an opaque transport-level peer identifier (an ephemeral id
// or, once paired, a permanent public key — the core does not care which).
type PeerID string

// AckFuture resolves once the transport either accepts or fails to
// deliver a send. A nil error means the transport handed the frame off;
// it says nothing about end-to-end delivery, which is the job of the
// relay ACK protocol layered on top.
type AckFuture <-chan error

// Sender is the outbound half of the transport boundary.
type Sender interface {
	// Send hands a length-delimited frame to the transport for peer.
	Send(ctx context.Context, peer PeerID, frame []byte) (AckFuture, error)
}

// Handlers is the inbound half: the core registers these callbacks and
// the transport invokes them as radio events occur.
type Handlers struct {
	OnReceive          func(peer PeerID, frame []byte)
	OnPeerConnected    func(peer PeerID)
	OnPeerDisconnected func(peer PeerID)
}

// Transport composes the outbound and inbound halves of the boundary.
type Transport interface {
	Sender
	// Bind registers the handlers the transport will invoke. Bind is
	// called once at startup, before any Send.
	Bind(h Handlers)
	// Close releases transport resources.
	Close() error
}
