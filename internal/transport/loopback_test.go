package transport

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLoopbackTransport_SendDeliversToBoundHandler(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")

	received := make(chan []byte, 1)
	b.Bind(Handlers{OnReceive: func(peer PeerID, frame []byte) {
		if peer != "a" {
			t.Errorf("expected sender a, got %s", peer)
		}
		received <- frame
	}})

	if _, err := a.Send(context.Background(), "b", []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Fatalf("expected hello, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestLoopbackTransport_SendToUnknownPeerResolvesWithError(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")

	fut, err := a.Send(context.Background(), "ghost", []byte("x"))
	if err != nil {
		t.Fatalf("send itself should not error, got %v", err)
	}
	sendErr := <-fut
	if sendErr == nil {
		t.Fatal("expected the future to resolve with an unreachable-peer error")
	}
}

func TestLoopbackTransport_CloseRejectsFurtherSends(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	hub.Join("b")

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.Send(context.Background(), "b", []byte("x")); err == nil {
		t.Fatal("expected send after close to error")
	}
}

func TestHub_ConnectFiresOnPeerConnectedBothWays(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")

	var mu sync.Mutex
	var aConnectedTo, bConnectedTo PeerID
	a.Bind(Handlers{OnPeerConnected: func(peer PeerID) { mu.Lock(); aConnectedTo = peer; mu.Unlock() }})
	b.Bind(Handlers{OnPeerConnected: func(peer PeerID) { mu.Lock(); bConnectedTo = peer; mu.Unlock() }})

	if err := hub.Connect("a", "b"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if aConnectedTo != "b" {
		t.Fatalf("expected a to observe connection to b, got %s", aConnectedTo)
	}
	if bConnectedTo != "a" {
		t.Fatalf("expected b to observe connection to a, got %s", bConnectedTo)
	}
}

func TestHub_ConnectUnknownPeerFails(t *testing.T) {
	hub := NewHub()
	hub.Join("a")
	if err := hub.Connect("a", "ghost"); err == nil {
		t.Fatal("expected error connecting to an unjoined peer")
	}
}

func TestHub_DisconnectFiresBothSides(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")

	var aSaw, bSaw bool
	a.Bind(Handlers{OnPeerDisconnected: func(peer PeerID) { aSaw = true }})
	b.Bind(Handlers{OnPeerDisconnected: func(peer PeerID) { bSaw = true }})

	hub.Disconnect("a", "b")
	if !aSaw || !bSaw {
		t.Fatalf("expected both sides to observe disconnect, a=%v b=%v", aSaw, bSaw)
	}
}

func TestHub_LeaveNotifiesRemainingPeers(t *testing.T) {
	hub := NewHub()
	hub.Join("a")
	b := hub.Join("b")

	var bSaw PeerID
	b.Bind(Handlers{OnPeerDisconnected: func(peer PeerID) { bSaw = peer }})

	hub.Leave("a")
	if bSaw != "a" {
		t.Fatalf("expected b to be notified of a's departure, got %s", bSaw)
	}

	if _, err := b.Send(context.Background(), "a", []byte("x")); err != nil {
		t.Fatalf("send itself should not error: %v", err)
	}
}
