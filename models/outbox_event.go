package models

import (
	"time"
)

// OutboxEvent is a row written by an external producer (ticketing,
// alerting) for relay onto the event bus. Data holds the JSON payload.
type OutboxEvent struct {
	ID        uint      `gorm:"primaryKey"`
	Event     string    `gorm:"type:varchar(50);not null"`
	OrgID     string    `gorm:"type:varchar(64)"`
	UserID    string    `gorm:"type:varchar(64)"`
	Data      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	Processed bool      `gorm:"default:false;index:idx_outbox_processed"`
}

func (OutboxEvent) TableName() string {
	return "event_outbox"
}
