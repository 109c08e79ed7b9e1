package models

import "time"

// WebhookEvent is the durable dedup set for provider notifications. One row
// per provider event id; its presence means the event's transition has been
// applied (or deliberately absorbed) exactly once. Kept in the database, not
// memory, since multiple instances may run concurrently and restart.
type WebhookEvent struct {
	ProviderEventID string    `gorm:"primaryKey;size:128" json:"provider_event_id"`
	Provider        string    `gorm:"size:50;index" json:"provider"`
	PaymentID       *uint     `gorm:"index" json:"payment_id,omitempty"`
	Outcome         string    `gorm:"size:30" json:"outcome"`
	ProcessedAt     time.Time `json:"processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
