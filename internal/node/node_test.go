package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshline/meshcore/internal/config"
	"github.com/meshline/meshcore/internal/identity"
	"github.com/meshline/meshcore/internal/queue"
	"github.com/meshline/meshcore/internal/transport"
)

// newTestNode creates a node and joins it to hub under its own permanent
// public key, the same id cmd/meshdemo's dialing node announces itself
// under.
func newTestNode(t *testing.T, name string, hub *transport.Hub) (*Node, transport.PeerID) {
	t.Helper()
	identityPath := filepath.Join(t.TempDir(), name+".key")
	id, err := identity.LoadOrGenerate(identityPath)
	if err != nil {
		t.Fatalf("generate identity(%s): %v", name, err)
	}

	cfg := config.DefaultNodeConfig()
	cfg.IdentityPath = identityPath
	cfg.DatabasePath = "sqlite://:memory:"

	peerID := transport.PeerID(id.PublicKeyHex())
	tr := hub.Join(peerID)
	n, err := New(cfg, tr, nil)
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start(%s): %v", name, err)
	}
	t.Cleanup(func() { n.Stop() })
	return n, peerID
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNode_HandshakeEstablishesOnConnect(t *testing.T) {
	hub := transport.NewHub()
	a, aPeer := newTestNode(t, "alice", hub)
	b, bPeer := newTestNode(t, "bob", hub)

	if err := hub.Connect(aPeer, bPeer); err != nil {
		t.Fatalf("connect: %v", err)
	}

	bobPK := b.identity.PublicKeyHex()
	alicePK := a.identity.PublicKeyHex()

	waitFor(t, 2*time.Second, func() bool {
		return a.sessions.State(bobPK).String() == "established"
	})
	waitFor(t, 2*time.Second, func() bool {
		return b.sessions.State(alicePK).String() == "established"
	})
}

func TestNode_SendMessageEnqueuesAfterHandshake(t *testing.T) {
	hub := transport.NewHub()
	a, aPeer := newTestNode(t, "carol", hub)
	b, bPeer := newTestNode(t, "dave", hub)

	if err := hub.Connect(aPeer, bPeer); err != nil {
		t.Fatalf("connect: %v", err)
	}

	bobPK := b.identity.PublicKeyHex()

	waitFor(t, 2*time.Second, func() bool {
		return a.sessions.State(bobPK).String() == "established"
	})

	msgID, err := a.SendMessage(context.Background(), "", bobPK, []byte("hello mesh"), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected a non-empty message id")
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(b.contacts.List()) > 0
	})
}

func TestNode_DoubleStopIsSafe(t *testing.T) {
	hub := transport.NewHub()
	cfg := config.DefaultNodeConfig()
	cfg.IdentityPath = filepath.Join(t.TempDir(), "erin.key")
	cfg.DatabasePath = "sqlite://:memory:"
	tr := hub.Join("erin")

	n, err := New(cfg, tr, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("second Stop should be a safe no-op, got: %v", err)
	}
}
