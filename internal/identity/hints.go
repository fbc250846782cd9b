package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"hash"
	"time"

	"golang.org/x/crypto/blake2s"
)

// AdvertisementVersion is the only version this core accepts in a packed
// discovery advertisement. Any other value rejects the frame.
const AdvertisementVersion = 0x01

// AdvertisementSize is the fixed wire size of a packed advertisement:
// version(1) + intro_hint_truncated(3) + sensitive_hint_truncated(2).
const AdvertisementSize = 6

var (
	// ErrBadAdvertisementLength is returned when Parse sees != AdvertisementSize bytes.
	ErrBadAdvertisementLength = errors.New("identity: advertisement has wrong length")
	// ErrBadAdvertisementVersion is returned when the version byte isn't AdvertisementVersion.
	ErrBadAdvertisementVersion = errors.New("identity: unsupported advertisement version")
)

// EphemeralHint is a short-lived, randomly generated introduction hint
// advertised before a handshake. It is usable only while Active and not
// expired.
type EphemeralHint struct {
	Bytes     [8]byte
	ExpiresAt time.Time
	Active    bool
}

// NewEphemeralHint creates a fresh random hint valid for ttl.
func NewEphemeralHint(ttl time.Duration) (EphemeralHint, error) {
	var h EphemeralHint
	if _, err := rand.Read(h.Bytes[:]); err != nil {
		return h, err
	}
	h.ExpiresAt = time.Now().Add(ttl)
	h.Active = true
	return h, nil
}

// Usable reports whether the hint may currently be advertised.
func (h EphemeralHint) Usable(now time.Time) bool {
	return h.Active && now.Before(h.ExpiresAt)
}

// SensitiveHint is a deterministic 4-byte hint derived from a shared seed
// and the contact's permanent public key, used to suggest identity to a
// peer that already shares a secret with us (e.g. a previously verified
// contact) without broadcasting the raw public key.
type SensitiveHint [4]byte

// DeriveSensitiveHint computes HMAC(sharedSeed, permanentPublicKey) and
// truncates to 4 bytes.
func DeriveSensitiveHint(sharedSeed []byte, permanentPublicKey []byte) SensitiveHint {
	mac := hmac.New(func() hash.Hash { h, _ := blake2s.New256(nil); return h }, sharedSeed)
	mac.Write(permanentPublicKey)
	sum := mac.Sum(nil)
	var out SensitiveHint
	copy(out[:], sum[:4])
	return out
}

// Advertisement is the packed 6-byte radio discovery payload:
//
//	byte 0:   version (AdvertisementVersion)
//	byte 1-3: truncated 3-byte prefix of the 8-byte introduction hint (all-zero if absent)
//	byte 4-5: truncated 2-byte prefix of the 4-byte sensitive hint (all-zero if absent)
type Advertisement struct {
	IntroPrefix     [3]byte
	HasIntro        bool
	SensitivePrefix [2]byte
	HasSensitive    bool
}

// Pack serializes the advertisement into its fixed 6-byte wire form.
func (a Advertisement) Pack() [AdvertisementSize]byte {
	var buf [AdvertisementSize]byte
	buf[0] = AdvertisementVersion
	if a.HasIntro {
		copy(buf[1:4], a.IntroPrefix[:])
	}
	if a.HasSensitive {
		copy(buf[4:6], a.SensitivePrefix[:])
	}
	return buf
}

// ParseAdvertisement decodes a packed advertisement. All-zero sub-fields
// are reported as absent via HasIntro/HasSensitive.
func ParseAdvertisement(data []byte) (Advertisement, error) {
	var a Advertisement
	if len(data) != AdvertisementSize {
		return a, ErrBadAdvertisementLength
	}
	if data[0] != AdvertisementVersion {
		return a, ErrBadAdvertisementVersion
	}
	copy(a.IntroPrefix[:], data[1:4])
	copy(a.SensitivePrefix[:], data[4:6])
	a.HasIntro = a.IntroPrefix != [3]byte{}
	a.HasSensitive = a.SensitivePrefix != [2]byte{}
	return a, nil
}

// PackHint builds an Advertisement from a live ephemeral hint and/or a
// sensitive hint, each optional.
func PackHint(intro *EphemeralHint, now time.Time, sensitive *SensitiveHint) Advertisement {
	var a Advertisement
	if intro != nil && intro.Usable(now) {
		copy(a.IntroPrefix[:], intro.Bytes[:3])
		a.HasIntro = true
	}
	if sensitive != nil {
		copy(a.SensitivePrefix[:], sensitive[:2])
		a.HasSensitive = true
	}
	return a
}
