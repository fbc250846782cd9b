package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/meshline/meshcore/internal/queue"
)

// QueueBackend adapts Store to queue.Backend.
type QueueBackend struct {
	store *Store
}

// NewQueueBackend creates a queue.Backend over store.
func NewQueueBackend(store *Store) *QueueBackend {
	return &QueueBackend{store: store}
}

func (b *QueueBackend) Insert(ctx context.Context, msg *queue.QueuedMessage) error {
	row := toQueueRow(msg)
	err := b.store.DB.WithContext(ctx).Create(row).Error
	if err != nil && isUniqueConstraint(err) {
		return queue.ErrDuplicateMessageID
	}
	return err
}

func (b *QueueBackend) UpdateStatus(ctx context.Context, queueID string, status queue.Status, retryCount int, lastAttempt *time.Time) error {
	updates := map[string]interface{}{
		"status":      int(status),
		"retry_count": retryCount,
	}
	if lastAttempt != nil {
		updates["last_attempt_at"] = *lastAttempt
	}
	return b.store.DB.WithContext(ctx).Model(&QueuedMessageRow{}).
		Where("queue_id = ?", queueID).Updates(updates).Error
}

func (b *QueueBackend) Get(ctx context.Context, queueID string) (*queue.QueuedMessage, bool, error) {
	var row QueuedMessageRow
	err := b.store.DB.WithContext(ctx).Where("queue_id = ?", queueID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return fromQueueRow(&row), true, nil
}

func (b *QueueBackend) ListByStatusForPeer(ctx context.Context, peer string, statuses []queue.Status) ([]*queue.QueuedMessage, error) {
	var rows []QueuedMessageRow
	err := b.store.DB.WithContext(ctx).
		Where("recipient_public_key = ? AND status IN ?", peer, statusInts(statuses)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromQueueRows(rows), nil
}

func (b *QueueBackend) ListByStatus(ctx context.Context, statuses []queue.Status) ([]*queue.QueuedMessage, error) {
	var rows []QueuedMessageRow
	err := b.store.DB.WithContext(ctx).Where("status IN ?", statusInts(statuses)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromQueueRows(rows), nil
}

func (b *QueueBackend) Delete(ctx context.Context, queueID string) error {
	return b.store.DB.WithContext(ctx).Where("queue_id = ?", queueID).Delete(&QueuedMessageRow{}).Error
}

func statusInts(statuses []queue.Status) []int {
	out := make([]int, len(statuses))
	for i, s := range statuses {
		out[i] = int(s)
	}
	return out
}

func toQueueRow(m *queue.QueuedMessage) *QueuedMessageRow {
	return &QueuedMessageRow{
		QueueID:            m.QueueID,
		MessageID:          m.MessageID,
		ChatID:             m.ChatID,
		Content:            m.Content,
		RecipientPublicKey: m.RecipientPublicKey,
		SenderPublicKey:    m.SenderPublicKey,
		Priority:           int(m.Priority),
		Status:             int(m.Status),
		RetryCount:         m.RetryCount,
		CreatedAt:          m.CreatedAt,
		LastAttemptAt:      m.LastAttemptAt,
		IsRelayMessage:     m.IsRelayMessage,
		RelayNodeID:        m.RelayNodeID,
		MessageHash:        m.MessageHash,
		RelayMetadataJSON:  m.RelayMetadataJSON,
	}
}

func fromQueueRow(r *QueuedMessageRow) *queue.QueuedMessage {
	return &queue.QueuedMessage{
		QueueID:            r.QueueID,
		MessageID:          r.MessageID,
		ChatID:             r.ChatID,
		Content:            r.Content,
		RecipientPublicKey: r.RecipientPublicKey,
		SenderPublicKey:    r.SenderPublicKey,
		Priority:           queue.Priority(r.Priority),
		Status:             queue.Status(r.Status),
		RetryCount:         r.RetryCount,
		CreatedAt:          r.CreatedAt,
		LastAttemptAt:      r.LastAttemptAt,
		IsRelayMessage:     r.IsRelayMessage,
		RelayNodeID:        r.RelayNodeID,
		MessageHash:        r.MessageHash,
		RelayMetadataJSON:  r.RelayMetadataJSON,
	}
}

func fromQueueRows(rows []QueuedMessageRow) []*queue.QueuedMessage {
	out := make([]*queue.QueuedMessage, len(rows))
	for i := range rows {
		out[i] = fromQueueRow(&rows[i])
	}
	return out
}
