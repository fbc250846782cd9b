package identity

import (
	"testing"
	"time"
)

func TestEphemeralHint_UsableWithinTTL(t *testing.T) {
	h, err := NewEphemeralHint(time.Minute)
	if err != nil {
		t.Fatalf("new hint: %v", err)
	}
	if !h.Usable(time.Now()) {
		t.Fatal("expected fresh hint to be usable")
	}
	if h.Usable(time.Now().Add(2 * time.Minute)) {
		t.Fatal("expected hint to expire after ttl")
	}
}

func TestEphemeralHint_InactiveIsNotUsable(t *testing.T) {
	h, err := NewEphemeralHint(time.Hour)
	if err != nil {
		t.Fatalf("new hint: %v", err)
	}
	h.Active = false
	if h.Usable(time.Now()) {
		t.Fatal("expected inactive hint to not be usable")
	}
}

func TestDeriveSensitiveHint_Deterministic(t *testing.T) {
	seed := []byte("shared-seed")
	pub := []byte("peer-public-key-bytes")

	h1 := DeriveSensitiveHint(seed, pub)
	h2 := DeriveSensitiveHint(seed, pub)
	if h1 != h2 {
		t.Fatal("expected deterministic hint for the same inputs")
	}

	h3 := DeriveSensitiveHint([]byte("other-seed"), pub)
	if h1 == h3 {
		t.Fatal("expected different seed to produce a different hint")
	}
}

func TestAdvertisement_PackParseRoundTrip(t *testing.T) {
	a := Advertisement{
		IntroPrefix:     [3]byte{0x01, 0x02, 0x03},
		HasIntro:        true,
		SensitivePrefix: [2]byte{0xaa, 0xbb},
		HasSensitive:    true,
	}
	packed := a.Pack()
	parsed, err := ParseAdvertisement(packed[:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != a {
		t.Fatalf("round trip mismatch: got %+v want %+v", parsed, a)
	}
}

func TestParseAdvertisement_RejectsBadLength(t *testing.T) {
	if _, err := ParseAdvertisement([]byte{1, 2, 3}); err != ErrBadAdvertisementLength {
		t.Fatalf("expected ErrBadAdvertisementLength, got %v", err)
	}
}

func TestParseAdvertisement_RejectsBadVersion(t *testing.T) {
	buf := make([]byte, AdvertisementSize)
	buf[0] = 0xFF
	if _, err := ParseAdvertisement(buf); err != ErrBadAdvertisementVersion {
		t.Fatalf("expected ErrBadAdvertisementVersion, got %v", err)
	}
}

func TestPackHint_OmitsExpiredIntro(t *testing.T) {
	h, err := NewEphemeralHint(time.Minute)
	if err != nil {
		t.Fatalf("new hint: %v", err)
	}
	future := time.Now().Add(2 * time.Minute)
	a := PackHint(&h, future, nil)
	if a.HasIntro {
		t.Fatal("expected expired intro hint to be omitted")
	}
	if a.HasSensitive {
		t.Fatal("expected no sensitive hint when none supplied")
	}
}

func TestPackHint_IncludesUsableIntroAndSensitive(t *testing.T) {
	h, err := NewEphemeralHint(time.Minute)
	if err != nil {
		t.Fatalf("new hint: %v", err)
	}
	sensitive := DeriveSensitiveHint([]byte("seed"), []byte("pub"))
	a := PackHint(&h, time.Now(), &sensitive)
	if !a.HasIntro || !a.HasSensitive {
		t.Fatalf("expected both hints present, got %+v", a)
	}
	if a.IntroPrefix != [3]byte{h.Bytes[0], h.Bytes[1], h.Bytes[2]} {
		t.Fatal("expected intro prefix to match the hint's first 3 bytes")
	}
}
