package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWSTransport_DialSendReceiveRoundTrip(t *testing.T) {
	server := NewWSTransport(nil)
	received := make(chan []byte, 1)
	var connectedPeer PeerID
	server.Bind(Handlers{
		OnReceive:       func(peer PeerID, frame []byte) { received <- frame },
		OnPeerConnected: func(peer PeerID) { connectedPeer = peer },
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleUpgrade)
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer server.Close()

	client := NewWSTransport(nil)
	defer client.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if err := client.Dial(wsURL, "client-a"); err != nil {
		t.Fatalf("dial: %v", err)
	}

	fut, err := client.Send(context.Background(), PeerID(wsURL), []byte("hello over the wire"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sendErr := <-fut; sendErr != nil {
		t.Fatalf("write failed: %v", sendErr)
	}

	select {
	case got := <-received:
		if string(got) != "hello over the wire" {
			t.Fatalf("expected payload round trip, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive frame")
	}

	if connectedPeer != "client-a" {
		t.Fatalf("expected server to observe peer id client-a, got %s", connectedPeer)
	}
}

func TestWSTransport_HandleUpgradeRejectsMissingPeerHeader(t *testing.T) {
	server := NewWSTransport(nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleUpgrade)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing peer id header, got %d", resp.StatusCode)
	}
}

func TestWSTransport_SendToUnknownPeerErrors(t *testing.T) {
	tr := NewWSTransport(nil)
	if _, err := tr.Send(context.Background(), "ghost", []byte("x")); err == nil {
		t.Fatal("expected error sending to a peer with no connection")
	}
}
