package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yeremiapane/tenant-realtime/models"
	"github.com/yeremiapane/tenant-realtime/utils"
)

// Models lists every table the service reads or writes. Members, payments,
// API usage and audit logs are owned by other services in production; they
// are migrated here so a standalone deployment has them.
func Models() []interface{} {
	return []interface{}{
		&models.Notification{},
		&models.OutboxEvent{},
		&models.Member{},
		&models.Payment{},
		&models.APIUsage{},
		&models.AuditLog{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.WithField("tables", len(Models())).Info("AutoMigrate completed")
	return nil
}
