// Package store implements the durable relational store: gorm models
// for contacts, chats, messages, the offline queue, gossip
// announcements, archived chats/messages with a full-text index, device
// preferences and mappings, and migration metadata. It is the one
// subsystem every other package accesses only through this facade,
// never by holding the *gorm.DB directly.
package store

import "time"

// ContactRow is the durable row backing contact.Contact.
type ContactRow struct {
	EphemeralID       string `gorm:"primaryKey"`
	PermanentPublicKey []byte
	DisplayName       string
	TrustStatus       string `gorm:"default:unknown"`
	SecurityLevel     string `gorm:"default:low"`
	FirstSeen         time.Time
	LastSeen          time.Time
	NoisePublicKey    []byte
	NoiseSessionState string `gorm:"default:none"`
	LastHandshakeTime *time.Time
}

// ChatRow is a conversation, ephemeral (pre-pairing) or persistent.
type ChatRow struct {
	ChatID        string `gorm:"primaryKey"`
	IsEphemeral   bool
	PersistentKey string `gorm:"index"`
	LastMessage   string
	LastMessageAt *time.Time
	CreatedAt     time.Time
	Messages      []MessageRow `gorm:"foreignKey:ChatID;references:ChatID;constraint:OnDelete:CASCADE"`
}

// MessageRow is one message within a chat. SequenceNum preserves
// arrival order independent of any clock skew between devices.
type MessageRow struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ChatID          string `gorm:"index;not null"`
	MessageID       string `gorm:"uniqueIndex;not null"`
	SenderPublicKey string
	Content         []byte
	SequenceNum     uint `gorm:"autoIncrement"`
	CreatedAt       time.Time
}

// QueuedMessageRow is the durable offline-queue row.
type QueuedMessageRow struct {
	QueueID            string `gorm:"primaryKey"`
	MessageID          string `gorm:"uniqueIndex;not null"`
	ChatID             string
	Content            []byte
	RecipientPublicKey string `gorm:"index"`
	SenderPublicKey    string
	Priority           int
	Status             int `gorm:"index"`
	RetryCount         int
	CreatedAt          time.Time
	LastAttemptAt      *time.Time
	IsRelayMessage     bool
	RelayNodeID        string
	MessageHash        string
	RelayMetadataJSON  []byte
}

// GossipAnnouncementRow holds the single latest announcement per sender.
type GossipAnnouncementRow struct {
	SenderID         string `gorm:"primaryKey"`
	MessageID        string
	RelayMessageJSON []byte
	ObservedAt       time.Time
}

// ArchivedMessageRow is a message moved out of the live chat history;
// Content is mirrored into archived_messages_fts by trigger.
type ArchivedMessageRow struct {
	ID              uint `gorm:"primaryKey;autoIncrement"`
	ChatID          string
	MessageID       string `gorm:"uniqueIndex"`
	SenderPublicKey string
	Content         string
	ArchivedAt      time.Time
}

// DeletedMessageIDRow tombstones a message id so a re-delivered copy
// (e.g. via gossip re-announce) is not resurrected.
type DeletedMessageIDRow struct {
	MessageID string `gorm:"primaryKey"`
	DeletedAt time.Time
}

// DevicePreferenceRow is an opaque user-preference key/value pair.
type DevicePreferenceRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// DeviceMappingRow maps an ephemeral id to a stable local device
// identifier, used across identity/address rotation.
type DeviceMappingRow struct {
	EphemeralID string `gorm:"primaryKey"`
	DeviceID    string `gorm:"index"`
}

// MigrationMetaRow records one ephemeral-to-persistent chat migration.
type MigrationMetaRow struct {
	ID            uint `gorm:"primaryKey;autoIncrement"`
	FromChatID    string
	ToChatID      string
	MessageCount  int
	MigratedAt    time.Time
}

func allModels() []interface{} {
	return []interface{}{
		&ContactRow{},
		&ChatRow{},
		&MessageRow{},
		&QueuedMessageRow{},
		&GossipAnnouncementRow{},
		&ArchivedMessageRow{},
		&DeletedMessageIDRow{},
		&DevicePreferenceRow{},
		&DeviceMappingRow{},
		&MigrationMetaRow{},
	}
}
