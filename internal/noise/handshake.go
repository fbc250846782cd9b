// Package noise implements the three-phase mutual-authentication
// handshake (Noise_XX_25519_ChaChaPoly_BLAKE2s, simplified) used to
// establish an encrypted session between two mesh nodes that have not
// necessarily seen each other's static key before — the XX pattern lets
// both static keys travel encrypted inside the handshake itself, which
// is what a pairing flow between strangers needs (contrast with IK,
// where the responder's static key must already be known).
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

const (
	// KeySize is the Curve25519 key size used for both static and ephemeral keys.
	KeySize = 32
	// NonceSize is the ChaCha20-Poly1305 nonce size.
	NonceSize = chacha20poly1305.NonceSize
	// TagSize is the Poly1305 authentication tag size.
	TagSize = chacha20poly1305.Overhead

	msg1Type byte = 1
	msg2Type byte = 2
	msg3Type byte = 3
)

var (
	protocolName = []byte("Noise_XX_25519_ChaChaPoly_BLAKE2s")
	prologue     = []byte("meshcore-handshake-v1")

	// ErrMalformedMessage is returned when a handshake message is too
	// short or carries an unexpected type byte.
	ErrMalformedMessage = errors.New("noise: malformed handshake message")
	// ErrAuthenticationFailed is returned when an AEAD open fails,
	// meaning the peer does not hold the expected key material.
	ErrAuthenticationFailed = errors.New("noise: authentication failed")
	// ErrOutOfOrder is returned when a handshake method is called in
	// the wrong phase for the state's role.
	ErrOutOfOrder = errors.New("noise: handshake message out of order")
)

// State drives one side of a single handshake. It is not safe for
// concurrent use; the handshake coordinator serializes calls per peer.
type State struct {
	initiator bool

	localStaticPriv [KeySize]byte
	localStaticPub  [KeySize]byte

	localEphemeralPriv [KeySize]byte
	localEphemeralPub  [KeySize]byte

	remoteEphemeralPub [KeySize]byte
	remoteStaticPub    [KeySize]byte

	psk [KeySize]byte

	chainingKey [blake2s.Size]byte
	hash        [blake2s.Size]byte

	phase int // number of messages processed so far (0..3)

	sendKey [chacha20poly1305.KeySize]byte
	recvKey [chacha20poly1305.KeySize]byte
	done    bool
}

// New creates handshake state for one side. psk is a pre-shared secret
// mixed into the transcript — a pairing code hash for first contact, or
// the zero key when no out-of-band secret applies.
func New(localPriv, localPub [KeySize]byte, psk [KeySize]byte, initiator bool) *State {
	s := &State{
		initiator:       initiator,
		localStaticPriv: localPriv,
		localStaticPub:  localPub,
		psk:             psk,
	}
	s.hash = blake2s.Sum256(protocolName)
	s.chainingKey = s.hash
	s.mixHash(prologue)
	return s
}

// RemoteStaticKey returns the peer's static public key, known to the
// initiator once it has read message 2 and to the responder once it has
// read message 3.
func (s *State) RemoteStaticKey() ([KeySize]byte, bool) {
	if s.phase < 2 || (!s.initiator && s.phase < 3) {
		return [KeySize]byte{}, false
	}
	return s.remoteStaticPub, true
}

// WriteMessage1 produces "-> e": the initiator's bare ephemeral key.
func (s *State) WriteMessage1() ([]byte, error) {
	if !s.initiator || s.phase != 0 {
		return nil, ErrOutOfOrder
	}
	if err := s.generateEphemeral(); err != nil {
		return nil, err
	}
	out := make([]byte, 1, 1+KeySize)
	out[0] = msg1Type
	out = append(out, s.localEphemeralPub[:]...)
	s.mixHash(s.localEphemeralPub[:])
	s.phase = 1
	return out, nil
}

// ReadMessage1 consumes "-> e" on the responder side.
func (s *State) ReadMessage1(msg []byte) error {
	if s.initiator || s.phase != 0 {
		return ErrOutOfOrder
	}
	if len(msg) != 1+KeySize || msg[0] != msg1Type {
		return ErrMalformedMessage
	}
	copy(s.remoteEphemeralPub[:], msg[1:])
	s.mixHash(s.remoteEphemeralPub[:])
	s.phase = 1
	return nil
}

// WriteMessage2 produces "<- e, ee, s, es" on the responder side.
func (s *State) WriteMessage2() ([]byte, error) {
	if s.initiator || s.phase != 1 {
		return nil, ErrOutOfOrder
	}
	if err := s.generateEphemeral(); err != nil {
		return nil, err
	}
	out := make([]byte, 1, 1+KeySize+KeySize+TagSize)
	out[0] = msg2Type
	out = append(out, s.localEphemeralPub[:]...)
	s.mixHash(s.localEphemeralPub[:])

	ee, err := curve25519.X25519(s.localEphemeralPriv[:], s.remoteEphemeralPub[:])
	if err != nil {
		return nil, fmt.Errorf("noise: DH(e,ee): %w", err)
	}
	s.mixKey(ee)

	encStatic := s.encryptAndHash(s.localStaticPub[:])
	out = append(out, encStatic...)

	es, err := curve25519.X25519(s.localStaticPriv[:], s.remoteEphemeralPub[:])
	if err != nil {
		return nil, fmt.Errorf("noise: DH(s,es): %w", err)
	}
	s.mixKey(es)

	s.mixKeyAndHash(s.psk[:])
	s.phase = 2
	return out, nil
}

// ReadMessage2 consumes "<- e, ee, s, es" on the initiator side.
func (s *State) ReadMessage2(msg []byte) error {
	if !s.initiator || s.phase != 1 {
		return ErrOutOfOrder
	}
	if len(msg) != 1+KeySize+KeySize+TagSize || msg[0] != msg2Type {
		return ErrMalformedMessage
	}
	pos := 1
	copy(s.remoteEphemeralPub[:], msg[pos:pos+KeySize])
	pos += KeySize
	s.mixHash(s.remoteEphemeralPub[:])

	ee, err := curve25519.X25519(s.localEphemeralPriv[:], s.remoteEphemeralPub[:])
	if err != nil {
		return fmt.Errorf("noise: DH(e,ee): %w", err)
	}
	s.mixKey(ee)

	decStatic, err := s.decryptAndHash(msg[pos : pos+KeySize+TagSize])
	if err != nil {
		return ErrAuthenticationFailed
	}
	copy(s.remoteStaticPub[:], decStatic)
	pos += KeySize + TagSize

	es, err := curve25519.X25519(s.localEphemeralPriv[:], s.remoteStaticPub[:])
	if err != nil {
		return fmt.Errorf("noise: DH(e,es): %w", err)
	}
	s.mixKey(es)

	s.mixKeyAndHash(s.psk[:])
	s.phase = 2
	return nil
}

// WriteMessage3 produces "-> s, se" on the initiator side, completing
// the handshake and deriving transport keys.
func (s *State) WriteMessage3() ([]byte, error) {
	if !s.initiator || s.phase != 2 {
		return nil, ErrOutOfOrder
	}
	out := make([]byte, 1, 1+KeySize+TagSize)
	out[0] = msg3Type

	encStatic := s.encryptAndHash(s.localStaticPub[:])
	out = append(out, encStatic...)

	se, err := curve25519.X25519(s.localStaticPriv[:], s.remoteEphemeralPub[:])
	if err != nil {
		return nil, fmt.Errorf("noise: DH(s,se): %w", err)
	}
	s.mixKey(se)

	s.deriveTransportKeys()
	s.phase = 3
	s.done = true
	return out, nil
}

// ReadMessage3 consumes "-> s, se" on the responder side, completing
// the handshake and deriving transport keys.
func (s *State) ReadMessage3(msg []byte) error {
	if s.initiator || s.phase != 2 {
		return ErrOutOfOrder
	}
	if len(msg) != 1+KeySize+TagSize || msg[0] != msg3Type {
		return ErrMalformedMessage
	}
	decStatic, err := s.decryptAndHash(msg[1 : 1+KeySize+TagSize])
	if err != nil {
		return ErrAuthenticationFailed
	}
	copy(s.remoteStaticPub[:], decStatic)

	se, err := curve25519.X25519(s.localEphemeralPriv[:], s.remoteStaticPub[:])
	if err != nil {
		return fmt.Errorf("noise: DH(s,se): %w", err)
	}
	s.mixKey(se)

	s.deriveTransportKeys()
	s.phase = 3
	s.done = true
	return nil
}

// Complete reports whether the handshake has produced transport keys.
func (s *State) Complete() bool { return s.done }

// TransportKeys returns the derived send/receive keys. Valid only once Complete() is true.
func (s *State) TransportKeys() (send, recv [chacha20poly1305.KeySize]byte) {
	return s.sendKey, s.recvKey
}

func (s *State) generateEphemeral() error {
	if _, err := rand.Read(s.localEphemeralPriv[:]); err != nil {
		return fmt.Errorf("noise: generate ephemeral key: %w", err)
	}
	s.localEphemeralPriv[0] &= 248
	s.localEphemeralPriv[31] &= 127
	s.localEphemeralPriv[31] |= 64
	pub, err := curve25519.X25519(s.localEphemeralPriv[:], curve25519.Basepoint)
	if err != nil {
		return err
	}
	copy(s.localEphemeralPub[:], pub)
	return nil
}

func (s *State) mixHash(data []byte) {
	h, _ := blake2s.New256(nil)
	h.Write(s.hash[:])
	h.Write(data)
	copy(s.hash[:], h.Sum(nil))
}

func (s *State) mixKey(input []byte) {
	temp := hmacBlake2s(s.chainingKey[:], input)
	ck := hmacBlake2s(temp[:], []byte{0x01})
	copy(s.chainingKey[:], ck[:])
}

func (s *State) mixKeyAndHash(input []byte) {
	temp := hmacBlake2s(s.chainingKey[:], input)
	ck := hmacBlake2s(temp[:], []byte{0x01})
	copy(s.chainingKey[:], ck[:])
	tempH := hmacBlake2s(temp[:], append(append([]byte{}, ck[:]...), 0x02))
	s.mixHash(tempH[:])
}

func (s *State) encryptAndHash(plaintext []byte) []byte {
	key := hmacBlake2s(s.chainingKey[:], []byte{0x03})
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic("noise: chacha20poly1305.New: " + err.Error())
	}
	var nonce [NonceSize]byte
	ciphertext := aead.Seal(nil, nonce[:], plaintext, s.hash[:])
	s.mixHash(ciphertext)
	return ciphertext
}

func (s *State) decryptAndHash(ciphertext []byte) ([]byte, error) {
	key := hmacBlake2s(s.chainingKey[:], []byte{0x03})
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("noise: create AEAD: %w", err)
	}
	var nonce [NonceSize]byte
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, s.hash[:])
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	s.mixHash(ciphertext)
	return plaintext, nil
}

func (s *State) deriveTransportKeys() {
	temp := hmacBlake2s(s.chainingKey[:], nil)
	k1 := hmacBlake2s(temp[:], []byte{0x01})
	k2 := hmacBlake2s(temp[:], append(append([]byte{}, k1[:]...), 0x02))
	if s.initiator {
		s.sendKey = k1
		s.recvKey = k2
	} else {
		s.sendKey = k2
		s.recvKey = k1
	}
}

func hmacBlake2s(key, data []byte) [blake2s.Size]byte {
	if len(key) <= blake2s.Size {
		h, err := blake2s.New256(key)
		if err == nil {
			h.Write(data)
			var result [blake2s.Size]byte
			copy(result[:], h.Sum(nil))
			return result
		}
	}
	keyHash := blake2s.Sum256(key)
	h, _ := blake2s.New256(keyHash[:])
	h.Write(data)
	var result [blake2s.Size]byte
	copy(result[:], h.Sum(nil))
	return result
}
