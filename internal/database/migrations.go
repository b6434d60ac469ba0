package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/models"
)

// NotificationIndexes lists the secondary indexes maintained on the notifications table.
var NotificationIndexes = []string{
	"idx_notifications_user_id",
	"idx_notifications_created_at",
	"idx_notifications_read",
	"idx_notifications_deleted_at",
}

// AutoMigrate creates or updates the database schema for all models.
// Profiles are migrated first so the notifications foreign key can reference them.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Profile{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&models.RateCounter{}); err != nil {
		return err
	}
	return ensureNotificationIndexes(db)
}

func ensureNotificationIndexes(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, name := range NotificationIndexes {
		if migrator.HasIndex(&models.Notification{}, name) {
			continue
		}
		if err := migrator.CreateIndex(&models.Notification{}, name); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}
