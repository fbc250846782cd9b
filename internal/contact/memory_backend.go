package contact

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process Backend used by tests.
type MemoryBackend struct {
	mu   sync.Mutex
	rows map[string]*Contact
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string]*Contact)}
}

func (b *MemoryBackend) Upsert(ctx context.Context, c *Contact) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *c
	b.rows[c.EphemeralID] = &cp
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, ephemeralID string) (*Contact, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.rows[ephemeralID]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func (b *MemoryBackend) List(ctx context.Context) ([]*Contact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Contact, 0, len(b.rows))
	for _, c := range b.rows {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}
