package meshcore

import (
	"errors"
	"testing"
)

func TestError_UnwrapExposesWrappedError(t *testing.T) {
	inner := errors.New("connection reset")
	err := TransportFailure("send", inner)

	if !errors.Is(err, inner) {
		t.Fatal("expected errors.Is to find the wrapped error")
	}
	if !err.Retryable {
		t.Fatal("expected transport failures to be retryable")
	}
	if err.Kind != KindTransport {
		t.Fatalf("expected KindTransport, got %s", err.Kind)
	}
}

func TestError_ErrorStringIncludesReasonAndWrapped(t *testing.T) {
	err := StoreError("contact.Upsert", errors.New("disk full"), true)
	msg := err.Error()
	if msg != "contact.Upsert: store error: disk full" {
		t.Fatalf("unexpected error string: %q", msg)
	}
}

func TestError_ErrorStringWithoutWrappedErr(t *testing.T) {
	err := ProtocolError("handshake.OnReceived", "handshake_mismatch")
	if err.Error() != "handshake.OnReceived: handshake_mismatch" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
	if err.Err != nil {
		t.Fatal("expected no wrapped error")
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindTransport:     "transport",
		KindProtocol:      "protocol",
		KindCrypto:        "crypto",
		KindPolicy:        "policy",
		KindStore:         "store",
		KindConfiguration: "configuration",
		Kind(99):          "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestCryptoError_NotRetryableByDefault(t *testing.T) {
	err := CryptoError("cipher.Decrypt", "authentication failed")
	if err.Retryable {
		t.Fatal("expected crypto errors to default to non-retryable")
	}
}
