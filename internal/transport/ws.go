package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PeerIDHeader names the header a dialing peer sends to identify
// itself to the accepting side; the demo harness is the only caller
// and always sets it.
const PeerIDHeader = "X-Peer-ID"

// WSTransport is a real-socket stand-in for the BLE radio transport,
// used by cmd/meshdemo and integration tests to run the mesh core
// across actual network connections instead of the in-memory loopback.
// One node both serves inbound connections (ListenAndServe) and dials
// outbound ones (Dial); every established connection, in either
// direction, is just a peer in the conns map.
type WSTransport struct {
	log *slog.Logger

	mu     sync.RWMutex
	conns  map[PeerID]*websocket.Conn
	h      Handlers
	server *http.Server
}

// NewWSTransport creates an unbound transport; call Bind before
// ListenAndServe/Dial so inbound frames have somewhere to go.
func NewWSTransport(log *slog.Logger) *WSTransport {
	if log == nil {
		log = slog.Default()
	}
	return &WSTransport{
		log:   log.With("component", "ws_transport"),
		conns: make(map[PeerID]*websocket.Conn),
	}
}

// Bind registers the handlers the transport will invoke.
func (t *WSTransport) Bind(h Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h = h
}

// ListenAndServe starts an HTTP server on addr exposing a single /ws
// upgrade endpoint. It returns once the listener is closed (via Close)
// or fails to start.
func (t *WSTransport) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.handleUpgrade)
	t.mu.Lock()
	t.server = &http.Server{Addr: addr, Handler: mux}
	server := t.server
	t.mu.Unlock()
	return server.ListenAndServe()
}

func (t *WSTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	peer := PeerID(r.Header.Get(PeerIDHeader))
	if peer == "" {
		http.Error(w, "missing "+PeerIDHeader, http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Error("upgrade failed", "peer", peer, "error", err)
		return
	}
	t.adopt(peer, conn)
}

// Dial connects out to another WSTransport's ListenAndServe endpoint,
// identifying this node as selfID.
func (t *WSTransport) Dial(url string, selfID PeerID) error {
	header := http.Header{}
	header.Set(PeerIDHeader, string(selfID))
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	t.adopt(PeerID(url), conn)
	return nil
}

func (t *WSTransport) adopt(peer PeerID, conn *websocket.Conn) {
	t.mu.Lock()
	t.conns[peer] = conn
	h := t.h
	t.mu.Unlock()

	if h.OnPeerConnected != nil {
		h.OnPeerConnected(peer)
	}
	go t.readLoop(peer, conn)
}

func (t *WSTransport) readLoop(peer PeerID, conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, peer)
		h := t.h
		t.mu.Unlock()
		conn.Close()
		if h.OnPeerDisconnected != nil {
			h.OnPeerDisconnected(peer)
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		t.mu.RLock()
		h := t.h
		t.mu.RUnlock()
		if h.OnReceive != nil {
			h.OnReceive(peer, data)
		}
	}
}

// Send writes frame to peer as a single binary WebSocket message. The
// returned future resolves once the write completes.
func (t *WSTransport) Send(ctx context.Context, peer PeerID, frame []byte) (AckFuture, error) {
	t.mu.RLock()
	conn, ok := t.conns[peer]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ws transport: no connection to peer %s", peer)
	}

	ch := make(chan error, 1)
	go func() {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		ch <- conn.WriteMessage(websocket.BinaryMessage, frame)
	}()
	return ch, nil
}

// Close shuts down the listener (if any) and every connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	server := t.server
	conns := t.conns
	t.conns = make(map[PeerID]*websocket.Conn)
	t.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}
