// Package contact implements the contact store: the durable mapping
// from a peer's ephemeral id to its permanent key, display name, and
// Noise session state.
package contact

import (
	"context"
	"sync"
	"time"

	"github.com/meshline/meshcore/internal/meshcore"
)

// TrustStatus tracks how much a contact's identity has been verified.
type TrustStatus string

const (
	TrustUnknown  TrustStatus = "unknown"
	TrustVerified TrustStatus = "verified"
	TrustRevoked  TrustStatus = "revoked"
)

// SecurityLevel is a coarse indicator surfaced to the UI/admin API.
type SecurityLevel string

const (
	SecurityLow    SecurityLevel = "low"
	SecurityMedium SecurityLevel = "medium"
	SecurityHigh   SecurityLevel = "high"
)

// NoiseSessionState mirrors the contact row's view of its Noise session,
// distinct from (but kept in sync with) noise.SessionState.
type NoiseSessionState string

const (
	SessionNone         NoiseSessionState = "none"
	SessionHandshaking  NoiseSessionState = "handshaking"
	SessionEstablished  NoiseSessionState = "established"
	SessionExpired      NoiseSessionState = "expired"
)

// Contact is one row of the contact store.
type Contact struct {
	EphemeralID        string
	PermanentPublicKey []byte
	DisplayName        string
	TrustStatus        TrustStatus
	SecurityLevel      SecurityLevel
	FirstSeen          time.Time
	LastSeen           time.Time
	NoisePublicKey     []byte
	NoiseSessionState  NoiseSessionState
	LastHandshakeTime  *time.Time
}

// Backend is the persistence facade Store drives; a durable
// implementation lives in internal/store.
type Backend interface {
	Upsert(ctx context.Context, c *Contact) error
	Get(ctx context.Context, ephemeralID string) (*Contact, bool, error)
	List(ctx context.Context) ([]*Contact, error)
}

// Store is the in-process contact cache, backed by a durable Backend.
// Reads are served from memory; writes update the cache and then the
// Backend. A failed Backend write is returned as an error, and the cache
// keeps the new value.
type Store struct {
	backend Backend
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*Contact
}

// New creates a contact store over backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now, cache: make(map[string]*Contact)}
}

// Warm loads every contact from the backend into the in-memory cache,
// called once at startup.
func (s *Store) Warm(ctx context.Context) error {
	rows, err := s.backend.List(ctx)
	if err != nil {
		return meshcore.StoreError("contact.Warm", err, true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range rows {
		s.cache[c.EphemeralID] = c
	}
	return nil
}

// Observe records first/last contact with a peer, creating the row on
// first encounter. Invariant: at most one row per ephemeral_id.
func (s *Store) Observe(ctx context.Context, ephemeralID string) (*Contact, error) {
	s.mu.Lock()
	c, ok := s.cache[ephemeralID]
	now := s.now()
	if !ok {
		c = &Contact{
			EphemeralID:       ephemeralID,
			TrustStatus:       TrustUnknown,
			SecurityLevel:     SecurityLow,
			FirstSeen:         now,
			LastSeen:          now,
			NoiseSessionState: SessionNone,
		}
	} else {
		c.LastSeen = now
	}
	s.cache[ephemeralID] = c
	cp := *c
	s.mu.Unlock()

	if err := s.backend.Upsert(ctx, &cp); err != nil {
		return nil, meshcore.StoreError("contact.Observe", err, true)
	}
	return &cp, nil
}

// Get returns the cached contact for ephemeralID.
func (s *Store) Get(ephemeralID string) (*Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[ephemeralID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// List returns every cached contact.
func (s *Store) List() []*Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Contact, 0, len(s.cache))
	for _, c := range s.cache {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// CompleteHandshake records a successful handshake: noise_public_key
// becomes non-empty and noise_session_state moves to established,
// satisfying the invariant that the two always change together.
func (s *Store) CompleteHandshake(ctx context.Context, ephemeralID string, displayName string, noisePublicKey []byte) (*Contact, error) {
	s.mu.Lock()
	c, ok := s.cache[ephemeralID]
	if !ok {
		c = &Contact{EphemeralID: ephemeralID, TrustStatus: TrustUnknown, SecurityLevel: SecurityLow, FirstSeen: s.now()}
	}
	now := s.now()
	if displayName != "" {
		c.DisplayName = displayName
	}
	c.NoisePublicKey = noisePublicKey
	c.NoiseSessionState = SessionEstablished
	c.LastHandshakeTime = &now
	c.LastSeen = now
	s.cache[ephemeralID] = c
	cp := *c
	s.mu.Unlock()

	if err := s.backend.Upsert(ctx, &cp); err != nil {
		return nil, meshcore.StoreError("contact.CompleteHandshake", err, true)
	}
	return &cp, nil
}

// FailHandshake records a failed or abandoned handshake: trust stays
// unknown (unless already verified) and the session state resets to
// none, matching the error-handling design's user-visible behavior.
func (s *Store) FailHandshake(ctx context.Context, ephemeralID string) error {
	s.mu.Lock()
	c, ok := s.cache[ephemeralID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	c.NoiseSessionState = SessionNone
	c.NoisePublicKey = nil
	s.cache[ephemeralID] = c
	cp := *c
	s.mu.Unlock()

	if err := s.backend.Upsert(ctx, &cp); err != nil {
		return meshcore.StoreError("contact.FailHandshake", err, true)
	}
	return nil
}

// SetTrustStatus updates a contact's trust level (e.g. after manual
// out-of-band verification in the admin API).
func (s *Store) SetTrustStatus(ctx context.Context, ephemeralID string, status TrustStatus) error {
	s.mu.Lock()
	c, ok := s.cache[ephemeralID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	c.TrustStatus = status
	cp := *c
	s.mu.Unlock()

	if err := s.backend.Upsert(ctx, &cp); err != nil {
		return meshcore.StoreError("contact.SetTrustStatus", err, true)
	}
	return nil
}
