package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend implementation used by tests
// and any deployment that does not need durability across restarts.
type MemoryBackend struct {
	mu   sync.Mutex
	rows map[string]*QueuedMessage
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string]*QueuedMessage)}
}

func (b *MemoryBackend) Insert(ctx context.Context, msg *QueuedMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.rows {
		if existing.MessageID == msg.MessageID {
			return ErrDuplicateMessageID
		}
	}
	cp := *msg
	b.rows[msg.QueueID] = &cp
	return nil
}

func (b *MemoryBackend) UpdateStatus(ctx context.Context, queueID string, status Status, retryCount int, lastAttempt *time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.rows[queueID]
	if !ok {
		return nil
	}
	row.Status = status
	row.RetryCount = retryCount
	if lastAttempt != nil {
		row.LastAttemptAt = lastAttempt
	}
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, queueID string) (*QueuedMessage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.rows[queueID]
	if !ok {
		return nil, false, nil
	}
	cp := *row
	return &cp, true, nil
}

func (b *MemoryBackend) ListByStatusForPeer(ctx context.Context, peer string, statuses []Status) ([]*QueuedMessage, error) {
	set := statusSet(statuses)
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*QueuedMessage
	for _, row := range b.rows {
		if row.RecipientPublicKey == peer && set[row.Status] {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (b *MemoryBackend) ListByStatus(ctx context.Context, statuses []Status) ([]*QueuedMessage, error) {
	set := statusSet(statuses)
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*QueuedMessage
	for _, row := range b.rows {
		if set[row.Status] {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, queueID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rows, queueID)
	return nil
}

func statusSet(statuses []Status) map[Status]bool {
	m := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}
