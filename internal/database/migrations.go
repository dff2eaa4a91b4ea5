package database

import (
	"fmt"

	"gorm.io/gorm"
)

func (d *Database) RunMigrations() error {
	return MigrateSchema(d.db)
}

// MigrateSchema creates or updates every table used by the service.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&PropertyRecord{}, &ReviewRecord{}, &IngestRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Spatial lookups for the GeoJSON export
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_canonical_properties_coordinates
		ON canonical_properties(latitude, longitude);
	`).Error; err != nil {
		return fmt.Errorf("failed to create coordinates index: %w", err)
	}

	return nil
}
