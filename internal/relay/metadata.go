package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/meshline/meshcore/internal/queue"
)

// Metadata travels with a MeshRelayMessage and records the path it has
// taken, the TTL budget remaining, and enough bookkeeping for loop
// detection and ACK-path reversal.
type Metadata struct {
	TTL             int            `json:"ttl"`
	HopCount        int            `json:"hop_count"`
	RoutingPath     []string       `json:"routing_path"` // sender first
	MessageHash     string         `json:"message_hash"`
	Priority        queue.Priority `json:"priority"`
	RelayTimestamp  time.Time      `json:"relay_timestamp"`
	OriginalSender  string         `json:"original_sender"`
	FinalRecipient  string         `json:"final_recipient"`
	SenderRateCount int            `json:"sender_rate_count"`
}

// NewOutgoingMetadata builds the metadata for a message this node
// originates: routing_path = [self], hop_count = 1.
func NewOutgoingMetadata(self, finalRecipient string, priority queue.Priority, ttl int, content []byte) Metadata {
	return Metadata{
		TTL:            ttl,
		HopCount:       1,
		RoutingPath:    []string{self},
		MessageHash:    HashContent(content),
		Priority:       priority,
		RelayTimestamp: time.Now(),
		OriginalSender: self,
		FinalRecipient: finalRecipient,
	}
}

// HashContent computes the content-addressed message hash stamped on
// outgoing relay frames and consulted by the spam filter.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// AckRoutingPath returns the reverse of RoutingPath — the path the ACK
// frame follows backward to the originator.
func (m Metadata) AckRoutingPath() []string {
	out := make([]string, len(m.RoutingPath))
	for i, n := range m.RoutingPath {
		out[len(m.RoutingPath)-1-i] = n
	}
	return out
}

// PreviousHop returns the hop immediately before the last entry in
// RoutingPath, or "" if this node is the originator.
func (m Metadata) PreviousHop() (string, bool) {
	if len(m.RoutingPath) < 2 {
		return "", false
	}
	return m.RoutingPath[len(m.RoutingPath)-2], true
}

// IsOriginator reports whether RoutingPath contains only the
// originating node.
func (m Metadata) IsOriginator() bool {
	return len(m.RoutingPath) == 1
}

// HasNodeInPath reports whether node already appears on the routing
// path — the loop-detection primitive every hop decision consults.
func (m Metadata) HasNodeInPath(node string) bool {
	for _, n := range m.RoutingPath {
		if n == node {
			return true
		}
	}
	return false
}

// NextHop validates that appending candidate to the path would not
// create a loop. It returns an error if candidate is already present.
func (m Metadata) NextHop(candidate string) (string, error) {
	if m.HasNodeInPath(candidate) {
		return "", errLoopDetected
	}
	return candidate, nil
}

// WithHop returns a copy of m with node appended to the routing path
// and hop_count incremented — used when forwarding onward.
func (m Metadata) WithHop(node string) Metadata {
	next := m
	next.RoutingPath = append(append([]string{}, m.RoutingPath...), node)
	next.HopCount = len(next.RoutingPath)
	return next
}
