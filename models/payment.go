package models

import (
	"time"
)

const PaymentCompleted = "COMPLETED"

// Payment is written by the billing service. This service only aggregates it.
type Payment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	OrgID     string    `json:"org_id" gorm:"type:varchar(64);not null;index:idx_payments_org_created"`
	Amount    float64   `json:"amount" gorm:"type:decimal(12,2);not null;default:0.00"`
	Status    string    `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_payments_org_created"`
}
