// Package queue implements the durable, prioritized offline message
// queue: enqueue/flush/ack bookkeeping, retry with back-off, and the
// deterministic digest the gossip sync manager consumes.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/meshline/meshcore/internal/meshcore"
	"github.com/meshline/meshcore/internal/protocol"
	"github.com/meshline/meshcore/internal/transport"
)

// Priority orders outbound delivery; higher values are serviced first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a queued message.
type Status int

const (
	StatusPending Status = iota
	StatusSending
	StatusAwaitingAck
	StatusDelivered
	StatusFailed
	StatusRetrying
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSending:
		return "sending"
	case StatusAwaitingAck:
		return "awaiting_ack"
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	case StatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// QueuedMessage is one row of the offline queue.
type QueuedMessage struct {
	QueueID            string
	MessageID          string
	ChatID             string
	Content            []byte
	RecipientPublicKey string
	SenderPublicKey    string
	Priority           Priority
	Status             Status
	RetryCount         int
	CreatedAt          time.Time
	LastAttemptAt      *time.Time
	IsRelayMessage     bool
	RelayNodeID        string
	MessageHash        string
	RelayMetadataJSON  []byte
}

// Backend is the persistence facade the queue drives. A durable,
// transactional implementation lives in internal/store; MemoryBackend
// here serves tests and any in-process-only deployment.
type Backend interface {
	Insert(ctx context.Context, msg *QueuedMessage) error
	UpdateStatus(ctx context.Context, queueID string, status Status, retryCount int, lastAttempt *time.Time) error
	Get(ctx context.Context, queueID string) (*QueuedMessage, bool, error)
	ListByStatusForPeer(ctx context.Context, peer string, statuses []Status) ([]*QueuedMessage, error)
	ListByStatus(ctx context.Context, statuses []Status) ([]*QueuedMessage, error)
	Delete(ctx context.Context, queueID string) error
}

// ErrDuplicateMessageID is returned by Enqueue when message_id already exists.
var ErrDuplicateMessageID = errors.New("queue: duplicate message_id")

const (
	// DefaultRetryCeiling bounds how many retries are attempted before
	// a message is marked failed and left for an explicit retry-all.
	DefaultRetryCeiling = 5
	// baseBackoff is the first retry delay; subsequent delays double.
	baseBackoff = 2 * time.Second
)

// Statistics summarizes the queue's current composition.
type Statistics struct {
	Pending     int
	Sending     int
	AwaitingAck int
	Delivered   int
	Failed      int
	Retrying    int
}

// Queue is the single-writer-per-subsystem offline message queue.
type Queue struct {
	backend Backend
	sender  transport.Sender

	retryCeiling int
	now          func() time.Time

	mu sync.Mutex
}

// New creates a queue backed by backend, submitting accepted sends to
// sender.
func New(backend Backend, sender transport.Sender) *Queue {
	return &Queue{
		backend:      backend,
		sender:       sender,
		retryCeiling: DefaultRetryCeiling,
		now:          time.Now,
	}
}

// Enqueue inserts a new outbound message and returns its message_id.
func (q *Queue) Enqueue(ctx context.Context, chatID string, content []byte, recipientPK, senderPK string, priority Priority, messageID, messageHash string) (string, error) {
	msg := &QueuedMessage{
		QueueID:            messageID,
		MessageID:          messageID,
		ChatID:             chatID,
		Content:            content,
		RecipientPublicKey: recipientPK,
		SenderPublicKey:    senderPK,
		Priority:           priority,
		Status:             StatusPending,
		CreatedAt:          q.now(),
		MessageHash:        messageHash,
	}
	if err := q.backend.Insert(ctx, msg); err != nil {
		if errors.Is(err, ErrDuplicateMessageID) {
			return "", ErrDuplicateMessageID
		}
		return "", meshcore.StoreError("queue.Enqueue", err, false)
	}
	return messageID, nil
}

// Pending returns every message currently in pending or retrying status.
func (q *Queue) Pending(ctx context.Context) ([]*QueuedMessage, error) {
	msgs, err := q.backend.ListByStatus(ctx, []Status{StatusPending, StatusRetrying})
	if err != nil {
		return nil, meshcore.StoreError("queue.Pending", err, true)
	}
	return msgs, nil
}

// FlushForPeer atomically selects pending/retrying messages addressed
// to peer, orders them (priority desc, created_at asc), transitions
// them to sending, and hands each to the transport. On transport
// acceptance the message moves to awaiting_ack. A message already in
// awaiting_ack is left untouched — a second flush call never re-sends
// an unacknowledged message.
func (q *Queue) FlushForPeer(ctx context.Context, peer string) ([]*QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	candidates, err := q.backend.ListByStatusForPeer(ctx, peer, []Status{StatusPending, StatusRetrying})
	if err != nil {
		return nil, meshcore.StoreError("queue.FlushForPeer", err, true)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	sent := make([]*QueuedMessage, 0, len(candidates))
	for _, msg := range candidates {
		if err := q.backend.UpdateStatus(ctx, msg.QueueID, StatusSending, msg.RetryCount, nil); err != nil {
			return sent, meshcore.StoreError("queue.FlushForPeer", err, true)
		}
		frame := protocol.NewFrame(protocol.MsgTextMessage, msg.Content)
		encoded, err := frame.Encode()
		if err != nil {
			continue
		}
		fut, err := q.sender.Send(ctx, transport.PeerID(peer), encoded)
		if err == nil && fut != nil {
			err = <-fut
		}
		if err != nil {
			now := q.now()
			_ = q.backend.UpdateStatus(ctx, msg.QueueID, StatusRetrying, msg.RetryCount, &now)
			continue
		}
		now := q.now()
		if err := q.backend.UpdateStatus(ctx, msg.QueueID, StatusAwaitingAck, msg.RetryCount, &now); err != nil {
			return sent, meshcore.StoreError("queue.FlushForPeer", err, true)
		}
		msg.Status = StatusAwaitingAck
		sent = append(sent, msg)
	}
	return sent, nil
}

// MarkDelivered transitions message to the terminal delivered state.
func (q *Queue) MarkDelivered(ctx context.Context, messageID string) error {
	if err := q.backend.UpdateStatus(ctx, messageID, StatusDelivered, 0, nil); err != nil {
		return meshcore.StoreError("queue.MarkDelivered", err, true)
	}
	return nil
}

// OnAck resolves the awaiting_ack entry for messageID once an ACK
// arrives from fromNode, transitioning it to delivered.
func (q *Queue) OnAck(ctx context.Context, messageID string, fromNode string) error {
	msg, ok, err := q.backend.Get(ctx, messageID)
	if err != nil {
		return meshcore.StoreError("queue.OnAck", err, true)
	}
	if !ok {
		return nil
	}
	if msg.Status != StatusAwaitingAck {
		return nil
	}
	return q.MarkDelivered(ctx, messageID)
}

// RetryTimeout advances a timed-out awaiting_ack message to retrying
// (incrementing retry_count) or to failed once the ceiling is reached.
func (q *Queue) RetryTimeout(ctx context.Context, messageID string) error {
	msg, ok, err := q.backend.Get(ctx, messageID)
	if err != nil {
		return meshcore.StoreError("queue.RetryTimeout", err, true)
	}
	if !ok || msg.Status != StatusAwaitingAck {
		return nil
	}
	next := msg.RetryCount + 1
	now := q.now()
	status := StatusRetrying
	if next > q.retryCeiling {
		status = StatusFailed
	}
	if err := q.backend.UpdateStatus(ctx, messageID, status, next, &now); err != nil {
		return meshcore.StoreError("queue.RetryTimeout", err, true)
	}
	return nil
}

// BackoffDuration returns the exponential back-off delay for a given
// retry_count (0-indexed: the delay before the first retry).
func BackoffDuration(retryCount int) time.Duration {
	d := baseBackoff
	for i := 0; i < retryCount; i++ {
		d *= 2
	}
	return d
}

// Statistics reports a count of messages in each status.
func (q *Queue) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	all, err := q.backend.ListByStatus(ctx, []Status{StatusPending, StatusSending, StatusAwaitingAck, StatusDelivered, StatusFailed, StatusRetrying})
	if err != nil {
		return stats, meshcore.StoreError("queue.Statistics", err, true)
	}
	for _, m := range all {
		switch m.Status {
		case StatusPending:
			stats.Pending++
		case StatusSending:
			stats.Sending++
		case StatusAwaitingAck:
			stats.AwaitingAck++
		case StatusDelivered:
			stats.Delivered++
		case StatusFailed:
			stats.Failed++
		case StatusRetrying:
			stats.Retrying++
		}
	}
	return stats, nil
}
