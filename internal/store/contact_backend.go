package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meshline/meshcore/internal/contact"
)

// ContactBackend adapts Store to contact.Backend.
type ContactBackend struct {
	store *Store
}

// NewContactBackend creates a contact.Backend over store.
func NewContactBackend(store *Store) *ContactBackend {
	return &ContactBackend{store: store}
}

func (b *ContactBackend) Upsert(ctx context.Context, c *contact.Contact) error {
	row := toContactRow(c)
	return b.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ephemeral_id"}},
		UpdateAll: true,
	}).Create(row).Error
}

func (b *ContactBackend) Get(ctx context.Context, ephemeralID string) (*contact.Contact, bool, error) {
	var row ContactRow
	err := b.store.DB.WithContext(ctx).Where("ephemeral_id = ?", ephemeralID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return fromContactRow(&row), true, nil
}

func (b *ContactBackend) List(ctx context.Context) ([]*contact.Contact, error) {
	var rows []ContactRow
	if err := b.store.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*contact.Contact, len(rows))
	for i := range rows {
		out[i] = fromContactRow(&rows[i])
	}
	return out, nil
}

func toContactRow(c *contact.Contact) *ContactRow {
	return &ContactRow{
		EphemeralID:        c.EphemeralID,
		PermanentPublicKey: c.PermanentPublicKey,
		DisplayName:        c.DisplayName,
		TrustStatus:        string(c.TrustStatus),
		SecurityLevel:      string(c.SecurityLevel),
		FirstSeen:          c.FirstSeen,
		LastSeen:           c.LastSeen,
		NoisePublicKey:     c.NoisePublicKey,
		NoiseSessionState:  string(c.NoiseSessionState),
		LastHandshakeTime:  c.LastHandshakeTime,
	}
}

func fromContactRow(r *ContactRow) *contact.Contact {
	return &contact.Contact{
		EphemeralID:        r.EphemeralID,
		PermanentPublicKey: r.PermanentPublicKey,
		DisplayName:        r.DisplayName,
		TrustStatus:        contact.TrustStatus(r.TrustStatus),
		SecurityLevel:      contact.SecurityLevel(r.SecurityLevel),
		FirstSeen:          r.FirstSeen,
		LastSeen:           r.LastSeen,
		NoisePublicKey:     r.NoisePublicKey,
		NoiseSessionState:  contact.NoiseSessionState(r.NoiseSessionState),
		LastHandshakeTime:  r.LastHandshakeTime,
	}
}
