package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MigrateEphemeralChat moves every message from an ephemeral chat
// (created before a contact's permanent key was known) onto the
// persistent chat for persistentKey, creating that chat if needed,
// preserving message order, and removing the ephemeral chat rows.
// Runs inside one retried transaction so a crash mid-migration never
// leaves messages duplicated or missing.
func (s *Store) MigrateEphemeralChat(ctx context.Context, ephemeralChatID, persistentKey string) error {
	return s.WithRetry(ctx, func(tx *gorm.DB) error {
		var ephemeral ChatRow
		if err := tx.Where("chat_id = ?", ephemeralChatID).First(&ephemeral).Error; err != nil {
			return fmt.Errorf("migrate ephemeral chat %s: %w", ephemeralChatID, err)
		}

		persistentChatID := "chat:" + persistentKey
		var persistent ChatRow
		err := tx.Where("chat_id = ?", persistentChatID).First(&persistent).Error
		if err == gorm.ErrRecordNotFound {
			persistent = ChatRow{
				ChatID:        persistentChatID,
				IsEphemeral:   false,
				PersistentKey: persistentKey,
				CreatedAt:     ephemeral.CreatedAt,
			}
			if err := tx.Create(&persistent).Error; err != nil {
				return fmt.Errorf("create persistent chat: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup persistent chat: %w", err)
		}

		var messages []MessageRow
		if err := tx.Where("chat_id = ?", ephemeralChatID).Order("sequence_num ASC").Find(&messages).Error; err != nil {
			return fmt.Errorf("list ephemeral messages: %w", err)
		}
		if err := tx.Model(&MessageRow{}).
			Where("chat_id = ?", ephemeralChatID).
			Update("chat_id", persistentChatID).Error; err != nil {
			return fmt.Errorf("reparent messages: %w", err)
		}

		now := time.Now()
		var lastContent string
		if len(messages) > 0 {
			lastContent = string(messages[len(messages)-1].Content)
		}
		if err := tx.Model(&ChatRow{}).Where("chat_id = ?", persistentChatID).Updates(map[string]interface{}{
			"last_message":    lastContent,
			"last_message_at": now,
		}).Error; err != nil {
			return fmt.Errorf("update persistent chat metadata: %w", err)
		}

		if err := tx.Where("chat_id = ?", ephemeralChatID).Delete(&ChatRow{}).Error; err != nil {
			return fmt.Errorf("delete ephemeral chat: %w", err)
		}

		record := MigrationMetaRow{
			FromChatID:   ephemeralChatID,
			ToChatID:     persistentChatID,
			MessageCount: len(messages),
			MigratedAt:   now,
		}
		return tx.Create(&record).Error
	})
}
