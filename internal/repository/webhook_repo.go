package repository

import (
	"context"
	"errors"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/models"

	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Seen reports whether a provider event id has already been processed.
func (r *WebhookEventRepository) Seen(ctx context.Context, providerEventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed records an event that was absorbed without a ledger
// transition (duplicate, unmatched reference). A concurrent insert of the
// same id is treated as already-processed.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, evt *models.WebhookEvent) error {
	err := r.db.WithContext(ctx).Create(evt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// MarkProcessedWithAudit records the event and its audit entry in one
// transaction. The event row is inserted first so a duplicate id aborts
// before the entry is written; redelivery after a crash can therefore never
// duplicate the audit trail.
func (r *WebhookEventRepository) MarkProcessedWithAudit(ctx context.Context, evt *models.WebhookEvent, entry *models.AuditEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(evt).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}
