package models

import "time"

// AuditEntry is an append-only record of one state transition. Long-term
// retention and querying belong to the external audit sink; this engine only
// writes.
type AuditEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	EntityType    string    `gorm:"size:30;not null;index" json:"entity_type"`
	EntityID      uint      `gorm:"not null;index" json:"entity_id"`
	PreviousState string    `gorm:"size:30" json:"previous_state"`
	NewState      string    `gorm:"size:30;not null" json:"new_state"`
	Actor         string    `gorm:"size:100" json:"actor"`
	CorrelationID string    `gorm:"size:128;index" json:"correlation_id"`
	Metadata      string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
