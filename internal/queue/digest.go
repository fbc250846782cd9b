package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/meshline/meshcore/internal/meshcore"
)

// Hash returns a deterministic digest over the set of (message_id,
// priority) pairs currently pending or retrying. Two nodes holding the
// identical set always produce the identical digest regardless of
// insertion order — entries are sorted by message_id before hashing,
// the same stable-accumulation approach a content-addressed envelope
// hash uses to stay order-independent.
//
// force is unused: every call recomputes against the backend directly,
// kept in the signature so a future caching implementation can honor
// it without an interface change.
func (q *Queue) Hash(ctx context.Context, force bool) (string, error) {
	msgs, err := q.backend.ListByStatus(ctx, []Status{StatusPending, StatusRetrying})
	if err != nil {
		return "", meshcore.StoreError("queue.Hash", err, true)
	}
	return stableDigest(msgs), nil
}

func stableDigest(msgs []*QueuedMessage) string {
	type pair struct {
		id       string
		priority Priority
	}
	pairs := make([]pair, 0, len(msgs))
	for _, m := range msgs {
		pairs = append(pairs, pair{id: m.MessageID, priority: m.Priority})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p.id))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(int(p.priority))))
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MissingIDs returns local pending/retrying message ids absent from
// otherIDs — the set the peer lacks and should be sent.
func (q *Queue) MissingIDs(ctx context.Context, otherIDs []string) ([]string, error) {
	msgs, err := q.backend.ListByStatus(ctx, []Status{StatusPending, StatusRetrying})
	if err != nil {
		return nil, meshcore.StoreError("queue.MissingIDs", err, true)
	}
	have := make(map[string]bool, len(otherIDs))
	for _, id := range otherIDs {
		have[id] = true
	}
	var missing []string
	for _, m := range msgs {
		if !have[m.MessageID] {
			missing = append(missing, m.MessageID)
		}
	}
	return missing, nil
}

// Excess returns local pending/retrying message ids that otherIDs also
// holds — the complement of MissingIDs.
func (q *Queue) Excess(ctx context.Context, otherIDs []string) ([]string, error) {
	msgs, err := q.backend.ListByStatus(ctx, []Status{StatusPending, StatusRetrying})
	if err != nil {
		return nil, meshcore.StoreError("queue.Excess", err, true)
	}
	have := make(map[string]bool, len(otherIDs))
	for _, id := range otherIDs {
		have[id] = true
	}
	var excess []string
	for _, m := range msgs {
		if have[m.MessageID] {
			excess = append(excess, m.MessageID)
		}
	}
	return excess, nil
}
