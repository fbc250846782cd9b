package identity

import (
	"path/filepath"
	"testing"
)

func TestGenerate_DerivesConsistentPublicKeyAndAddress(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	reDerived, err := FromPrivateKey(id.PrivateKey)
	if err != nil {
		t.Fatalf("from private key: %v", err)
	}
	if reDerived.PublicKey != id.PublicKey {
		t.Fatal("expected FromPrivateKey to derive the same public key")
	}
	if reDerived.Address != id.Address {
		t.Fatal("expected FromPrivateKey to derive the same address")
	}
}

func TestLoadOrGenerate_PersistsAndReloadsSameIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "identity.key")

	first, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first.PrivateKey != second.PrivateKey {
		t.Fatal("expected reloading an existing identity file to return the same key")
	}
}

func TestAddressFromPublicKey_NeverZeroFirstByte(t *testing.T) {
	for i := 0; i < 20; i++ {
		id, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if id.Address[0] == 0 {
			t.Fatal("expected reserved zero-prefixed addresses to be remapped")
		}
	}
}

func TestAddressFromHex_RoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, err := AddressFromHex(id.Address.String())
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if parsed != id.Address {
		t.Fatal("expected round trip through hex to preserve address")
	}
}

func TestAddressFromHex_RejectsWrongLength(t *testing.T) {
	if _, err := AddressFromHex("aabb"); err == nil {
		t.Fatal("expected error for short address")
	}
}

func TestAddress_IsZero(t *testing.T) {
	var a Address
	if !a.IsZero() {
		t.Fatal("expected zero-value address to report IsZero")
	}
	id, _ := Generate()
	if id.Address.IsZero() {
		t.Fatal("expected generated address to not be zero")
	}
}
