package models

import "time"

// APIUsage records one API call made by a tenant.
type APIUsage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrgID     string    `gorm:"type:varchar(64);not null;index:idx_api_usage_org_created" json:"org_id"`
	Endpoint  string    `gorm:"type:varchar(255)" json:"endpoint"`
	CreatedAt time.Time `gorm:"index:idx_api_usage_org_created" json:"created_at"`
}

// AuditLog entries whose Action contains "ERROR" are counted as failures.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrgID     string    `gorm:"type:varchar(64);index:idx_audit_org_created" json:"org_id"`
	Action    string    `gorm:"type:varchar(100);not null" json:"action"`
	CreatedAt time.Time `gorm:"index:idx_audit_org_created" json:"created_at"`
}
