package models

import "time"

// Member is one user profile inside an org, owned by the identity service.
type Member struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrgID     string    `gorm:"type:varchar(64);not null;index:idx_members_org_created" json:"org_id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	CreatedAt time.Time `gorm:"index:idx_members_org_created" json:"created_at"`
}
