// Package meshcore holds the error taxonomy shared by every subsystem of
// the mesh messaging core: transport, protocol, crypto, policy, and store
// failures are each a distinct type so callers can branch on kind with
// errors.As instead of string matching.
package meshcore

import "fmt"

// Kind classifies a core-level failure into one of the buckets the
// propagation policy treats differently.
type Kind int

const (
	KindTransport Kind = iota
	KindProtocol
	KindCrypto
	KindPolicy
	KindStore
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindCrypto:
		return "crypto"
	case KindPolicy:
		return "policy"
	case KindStore:
		return "store"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a typed, wrappable core failure.
type Error struct {
	Kind    Kind
	Op      string
	Reason  string
	Err     error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// TransportFailure wraps a recoverable transport error (peer unreachable,
// send timeout). The queue retries; it is never surfaced past statistics.
func TransportFailure(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Reason: "transport failure", Err: err, Retryable: true}
}

// ProtocolError wraps a handshake-phase or frame-parse violation.
func ProtocolError(op, reason string) *Error {
	return &Error{Kind: KindProtocol, Op: op, Reason: reason}
}

// CryptoError wraps a decrypt/encrypt failure (tag mismatch, replay, no session).
func CryptoError(op, reason string) *Error {
	return &Error{Kind: KindCrypto, Op: op, Reason: reason}
}

// PolicyRejection wraps a relay/spam policy drop.
func PolicyRejection(op, reason string) *Error {
	return &Error{Kind: KindPolicy, Op: op, Reason: reason}
}

// StoreError wraps a durable-store failure. Retryable marks transient
// conflicts (sqlite SQLITE_BUSY) the facade retries with bounded back-off.
func StoreError(op string, err error, retryable bool) *Error {
	return &Error{Kind: KindStore, Op: op, Reason: "store error", Err: err, Retryable: retryable}
}

// ConfigurationError wraps an invalid runtime configuration.
func ConfigurationError(op, reason string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Reason: reason}
}
