package models

import (
	"time"
)

const (
	NotificationUnread = "UNREAD"
	NotificationRead   = "READ"
)

// Notification types as shown by the dashboard toasts.
const (
	NotificationInfo    = "INFO"
	NotificationSuccess = "SUCCESS"
	NotificationWarning = "WARNING"
	NotificationError   = "ERROR"
)

// Notification belongs to exactly one org. A nil UserID means the
// notification is org-wide.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	OrgID     string            `gorm:"type:varchar(64);not null;index:idx_notifications_org_status" json:"orgId"`
	UserID    *string           `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	Title     string            `gorm:"type:varchar(200);not null" json:"title"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	Type      string            `gorm:"type:varchar(16);not null;default:INFO" json:"type"`
	Status    string            `gorm:"type:varchar(16);not null;default:UNREAD;index:idx_notifications_org_status" json:"status"`
	Metadata  map[string]string `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"createdAt"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
}

// IsOrgWide reports whether every member of the org can see n.
func (n Notification) IsOrgWide() bool {
	return n.UserID == nil || *n.UserID == ""
}

// ValidNotificationType reports whether t is one of the known types.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError:
		return true
	}
	return false
}
