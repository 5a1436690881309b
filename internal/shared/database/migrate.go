package database

import (
	"eventdraw/internal/events"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&events.EventRecord{},
		&events.WaitlistEntryRecord{},
	); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
