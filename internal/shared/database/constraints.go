package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the checks and indexes AutoMigrate cannot express
func MigrateConstraints(db *gorm.DB) error {
	// Only known lifecycle states may be stored
	err := db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_waitlist_entries_status') THEN
				ALTER TABLE waitlist_entries
				ADD CONSTRAINT chk_waitlist_entries_status
				CHECK (status IN ('PENDING', 'WON', 'NOT_SELECTED', 'ACCEPTED', 'DECLINED', 'CANCELLED'));
			END IF;
		END $$;
	`).Error
	if err != nil {
		return err
	}

	// Draws and capacity checks filter by status within one event
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_waitlist_entries_event_status
		ON waitlist_entries (event_id, status);
	`).Error
}
