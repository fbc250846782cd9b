package noise

import "sync"

// SessionState mirrors the lifecycle a single peer's session moves
// through: no handshake yet, handshake in flight, or an established
// cipher ready to protect application traffic.
type SessionState int

const (
	SessionNone SessionState = iota
	SessionHandshaking
	SessionEstablished
)

func (s SessionState) String() string {
	switch s {
	case SessionNone:
		return "none"
	case SessionHandshaking:
		return "handshaking"
	case SessionEstablished:
		return "established"
	default:
		return "unknown"
	}
}

type session struct {
	hs     *State
	cipher *Cipher
}

// Manager owns one handshake/cipher pair per peer, keyed by a caller-
// supplied peer key (typically the peer's permanent or ephemeral public
// key, hex-encoded). It does not drive the handshake message exchange
// itself — the handshake coordinator owns that state machine and calls
// back into Manager once keys are available.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*session)}
}

// BeginHandshake registers a new handshake state for peer, replacing any
// prior session (a restarted handshake always wins — stale key material
// from an earlier attempt must not linger).
func (m *Manager) BeginHandshake(peer string, hs *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[peer] = &session{hs: hs}
}

// Handshake returns the in-flight handshake state for peer, if any.
func (m *Manager) Handshake(peer string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[peer]
	if !ok || s.hs == nil {
		return nil, false
	}
	return s.hs, true
}

// Establish finalizes peer's session with a completed handshake's
// transport keys, making Encrypt/Decrypt available.
func (m *Manager) Establish(peer string, hs *State) {
	send, recv := hs.TransportKeys()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[peer] = &session{hs: hs, cipher: NewCipher(send, recv)}
}

// State reports where peer's session currently sits in its lifecycle.
func (m *Manager) State(peer string) SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[peer]
	if !ok {
		return SessionNone
	}
	if s.cipher != nil {
		return SessionEstablished
	}
	return SessionHandshaking
}

// Encrypt protects plaintext for peer. It fails if no established
// session exists yet.
func (m *Manager) Encrypt(peer string, plaintext []byte) ([]byte, error) {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if !ok || s.cipher == nil {
		return nil, ErrOutOfOrder
	}
	return s.cipher.Encrypt(plaintext)
}

// Decrypt opens ciphertext received from peer.
func (m *Manager) Decrypt(peer string, ciphertext []byte) ([]byte, error) {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if !ok || s.cipher == nil {
		return nil, ErrOutOfOrder
	}
	return s.cipher.Decrypt(ciphertext)
}

// Clear drops peer's session entirely (handshake and cipher), used when
// a contact is removed or a session is explicitly reset.
func (m *Manager) Clear(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, peer)
}

// ClearAll drops every session, used on shutdown or identity rotation.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*session)
}

// Peers lists every peer with a non-empty session record.
func (m *Manager) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		out = append(out, k)
	}
	return out
}
