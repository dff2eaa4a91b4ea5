package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// IngestRecord logs what happened to one incoming listing.
type IngestRecord struct {
	ID              uint   `gorm:"primaryKey"`
	TenantID        string `gorm:"not null;index;index:idx_ingest_source,priority:1"`
	SourceName      string `gorm:"index:idx_ingest_source,priority:2"`
	SourceListingID string `gorm:"index:idx_ingest_source,priority:3"`
	CanonicalID     string `gorm:"size:36;index"`
	Decision        string
	Probability     float64
	ReceivedAt      time.Time
}

func (IngestRecord) TableName() string {
	return "listing_ingests"
}

func (d *Database) RecordIngest(r *IngestRecord) error {
	if err := d.db.Create(r).Error; err != nil {
		return fmt.Errorf("failed to record listing ingest: %w", err)
	}
	return nil
}

// IngestsFor returns the ingest log entries that resolved to a canonical property, oldest first.
func (d *Database) IngestsFor(tenantID, canonicalID string) ([]IngestRecord, error) {
	var records []IngestRecord
	err := d.db.Where("tenant_id = ? AND canonical_id = ?", tenantID, canonicalID).
		Order("received_at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list listing ingests: %w", err)
	}
	return records, nil
}

// FindIngest returns the latest ingest of a portal listing. The bool is false when the
// listing was never ingested for the tenant.
func (d *Database) FindIngest(tenantID, sourceName, sourceListingID string) (IngestRecord, bool, error) {
	var record IngestRecord
	err := d.db.Where("tenant_id = ? AND source_name = ? AND source_listing_id = ?", tenantID, sourceName, sourceListingID).
		Order("id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return IngestRecord{}, false, nil
	}
	if err != nil {
		return IngestRecord{}, false, fmt.Errorf("failed to find listing ingest: %w", err)
	}
	return record, true, nil
}
