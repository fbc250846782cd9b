// Package policy implements the spam/rate-limit gate and the runtime-
// tunable relay configuration that the mesh relay engine consults on
// every incoming frame.
package policy

import (
	"sync"
	"time"
)

// Verdict is the outcome of evaluating a candidate message against the
// spam policy.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictDropDuplicate
	VerdictDropRateLimited
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDropDuplicate:
		return "drop_duplicate"
	case VerdictDropRateLimited:
		return "drop_rate_limited"
	default:
		return "unknown"
	}
}

const (
	// DefaultDuplicateWindow is how long a message hash is remembered
	// for duplicate suppression. The spec leaves this choice open;
	// twelve hours matches the gossip announcement staleness window so
	// the two suppression mechanisms agree on what "recent" means.
	DefaultDuplicateWindow = 12 * time.Hour
	// DefaultRateLimitPerMinute bounds how many messages a single
	// sender may submit within one clock minute before being throttled.
	DefaultRateLimitPerMinute = 30
)

type hashRecord struct {
	seenAt time.Time
}

type senderCounter struct {
	minute int64
	count  int
}

// SpamPolicy tracks a per-sender counter bucketed by clock minute and a
// recent-hash filter to reject duplicate and bursty traffic.
type SpamPolicy struct {
	mu sync.Mutex

	duplicateWindow time.Duration
	ratePerMinute   int
	hashes          map[string]hashRecord
	counters        map[string]*senderCounter
	now             func() time.Time
}

// NewSpamPolicy creates a policy with the given duplicate window and
// per-minute rate ceiling.
func NewSpamPolicy(duplicateWindow time.Duration, ratePerMinute int) *SpamPolicy {
	return &SpamPolicy{
		duplicateWindow: duplicateWindow,
		ratePerMinute:   ratePerMinute,
		hashes:          make(map[string]hashRecord),
		counters:        make(map[string]*senderCounter),
		now:             time.Now,
	}
}

// NewDefaultSpamPolicy creates a policy using the documented defaults.
func NewDefaultSpamPolicy() *SpamPolicy {
	return NewSpamPolicy(DefaultDuplicateWindow, DefaultRateLimitPerMinute)
}

// Evaluate checks (senderID, messageHash) against both the duplicate
// filter and the rate limiter. Duplicate detection runs independently
// of the rate limiter — a duplicate under the rate limit is still
// flagged as a duplicate, never silently allowed.
func (p *SpamPolicy) Evaluate(senderID, messageHash string) Verdict {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	key := senderID + "|" + messageHash
	if rec, ok := p.hashes[key]; ok && now.Sub(rec.seenAt) < p.duplicateWindow {
		return VerdictDropDuplicate
	}
	p.hashes[key] = hashRecord{seenAt: now}

	minute := now.Unix() / 60
	c, ok := p.counters[senderID]
	if !ok || c.minute != minute {
		c = &senderCounter{minute: minute, count: 0}
		p.counters[senderID] = c
	}
	c.count++
	if c.count > p.ratePerMinute {
		return VerdictDropRateLimited
	}
	return VerdictAllow
}

// Prune removes hash records older than the duplicate window and
// counters for minutes that have fully elapsed, bounding memory growth
// on a long-running node. Safe to call periodically from a maintenance
// tick.
func (p *SpamPolicy) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for k, rec := range p.hashes {
		if now.Sub(rec.seenAt) >= p.duplicateWindow {
			delete(p.hashes, k)
		}
	}
	minute := now.Unix() / 60
	for k, c := range p.counters {
		if c.minute != minute {
			delete(p.counters, k)
		}
	}
}

// Reset clears all tracked state, used by tests.
func (p *SpamPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hashes = make(map[string]hashRecord)
	p.counters = make(map[string]*senderCounter)
}
