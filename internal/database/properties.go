package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"propertyhub/server/internal/models"
)

// maxMergeHops bounds how far GetProperty follows merged_into links.
const maxMergeHops = 8

// PropertyRecord is the stored form of a canonical property. Absorbed records keep
// their row with MergedInto pointing at the survivor.
type PropertyRecord struct {
	ID       string `gorm:"primaryKey;size:36"`
	TenantID string `gorm:"not null;index:idx_property_pool,priority:1"`

	Latitude     float64
	Longitude    float64
	District     string
	Municipality string `gorm:"index:idx_property_pool,priority:2"`
	Parish       string

	Typology  string `gorm:"index:idx_property_pool,priority:3"`
	Area      float64
	Bedrooms  int
	Bathrooms int
	Features  datatypes.JSONSlice[models.Feature]

	PriceMain          float64
	PriceMin           float64
	PriceMax           float64
	PriceDivergencePct float64

	Sources     datatypes.JSONSlice[models.Source]
	PortalCount int

	FirstSeen time.Time
	LastSeen  time.Time
	Events    datatypes.JSONSlice[models.MarketEvent]

	AngariaScore            float64
	VendaScore              float64
	AvailabilityProbability *float64

	MergedInto *string `gorm:"size:36;index"`

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (PropertyRecord) TableName() string {
	return "canonical_properties"
}

func toRecord(p *models.CanonicalProperty) PropertyRecord {
	return PropertyRecord{
		ID:                      p.ID,
		TenantID:                p.TenantID,
		Latitude:                p.Location.Latitude,
		Longitude:               p.Location.Longitude,
		District:                p.Location.District,
		Municipality:            p.Location.Municipality,
		Parish:                  p.Location.Parish,
		Typology:                p.Typology,
		Area:                    p.Area,
		Bedrooms:                p.Bedrooms,
		Bathrooms:               p.Bathrooms,
		Features:                datatypes.NewJSONSlice(p.Features),
		PriceMain:               p.PriceMain,
		PriceMin:                p.PriceMin,
		PriceMax:                p.PriceMax,
		PriceDivergencePct:      p.PriceDivergencePct,
		Sources:                 datatypes.NewJSONSlice(p.Sources),
		PortalCount:             p.PortalCount,
		FirstSeen:               p.FirstSeen,
		LastSeen:                p.LastSeen,
		Events:                  datatypes.NewJSONSlice(p.Events),
		AngariaScore:            p.AngariaScore,
		VendaScore:              p.VendaScore,
		AvailabilityProbability: p.AvailabilityProbability,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func (r *PropertyRecord) toModel() models.CanonicalProperty {
	return models.CanonicalProperty{
		ID:       r.ID,
		TenantID: r.TenantID,
		Location: models.Location{
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			District:     r.District,
			Municipality: r.Municipality,
			Parish:       r.Parish,
		},
		Typology:                r.Typology,
		Area:                    r.Area,
		Bedrooms:                r.Bedrooms,
		Bathrooms:               r.Bathrooms,
		Features:                []models.Feature(r.Features),
		PriceMain:               r.PriceMain,
		PriceMin:                r.PriceMin,
		PriceMax:                r.PriceMax,
		PriceDivergencePct:      r.PriceDivergencePct,
		Sources:                 []models.Source(r.Sources),
		PortalCount:             r.PortalCount,
		FirstSeen:               r.FirstSeen,
		LastSeen:                r.LastSeen,
		Events:                  []models.MarketEvent(r.Events),
		AngariaScore:            r.AngariaScore,
		VendaScore:              r.VendaScore,
		AvailabilityProbability: r.AvailabilityProbability,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

func toModels(records []PropertyRecord) []models.CanonicalProperty {
	properties := make([]models.CanonicalProperty, len(records))
	for i := range records {
		properties[i] = records[i].toModel()
	}
	return properties
}

func (d *Database) active(tenantID string) *gorm.DB {
	return d.db.Model(&PropertyRecord{}).Where("tenant_id = ? AND merged_into IS NULL", tenantID)
}

// LoadPool returns the active properties of a tenant that a dedup pass compares against.
// Empty municipality or typology widen the pool to the whole tenant.
func (d *Database) LoadPool(tenantID, municipality, typology string) ([]models.CanonicalProperty, error) {
	query := d.active(tenantID)
	if municipality != "" {
		query = query.Where("municipality = ?", municipality)
	}
	if typology != "" {
		query = query.Where("typology = ?", typology)
	}

	var records []PropertyRecord
	if err := query.Order("first_seen, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load property pool: %w", err)
	}
	return toModels(records), nil
}

// ListOptions filters and pages ListProperties.
type ListOptions struct {
	Municipality string `form:"municipality"`
	Typology     string `form:"typology"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// ListProperties returns active properties of a tenant, most recently seen first.
func (d *Database) ListProperties(tenantID string, opts ListOptions) ([]models.CanonicalProperty, error) {
	query := d.active(tenantID)
	if opts.Municipality != "" {
		query = query.Where("LOWER(municipality) = LOWER(?)", opts.Municipality)
	}
	if opts.Typology != "" {
		query = query.Where("LOWER(typology) = LOWER(?)", opts.Typology)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit).Offset(opts.Offset)
	}

	var records []PropertyRecord
	if err := query.Order("last_seen DESC, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return toModels(records), nil
}

// GetProperty returns a tenant's property by id. Ids of absorbed records resolve to the
// record that absorbed them.
func (d *Database) GetProperty(tenantID, id string) (models.CanonicalProperty, error) {
	for hop := 0; hop < maxMergeHops; hop++ {
		var record PropertyRecord
		err := d.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CanonicalProperty{}, ErrPropertyNotFound
		}
		if err != nil {
			return models.CanonicalProperty{}, fmt.Errorf("failed to get property: %w", err)
		}
		if record.MergedInto == nil {
			return record.toModel(), nil
		}
		id = *record.MergedInto
	}
	return models.CanonicalProperty{}, fmt.Errorf("failed to get property: merge chain longer than %d", maxMergeHops)
}

// SaveProperty inserts or fully replaces a property.
func (d *Database) SaveProperty(p *models.CanonicalProperty) error {
	record := toRecord(p)
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	if err := d.db.Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save property %s: %w", p.ID, err)
	}
	p.CreatedAt = record.CreatedAt
	p.UpdatedAt = record.UpdatedAt
	return nil
}

// RetireProperty marks id as absorbed by mergedInto. Records previously absorbed by id
// are repointed so lookups stay one hop long, and so is the ingest log of id.
func (d *Database) RetireProperty(id, mergedInto string) error {
	result := d.db.Model(&PropertyRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"merged_into": mergedInto,
		"updated_at":  time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to retire property %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPropertyNotFound
	}

	if err := d.db.Model(&PropertyRecord{}).Where("merged_into = ?", id).
		Update("merged_into", mergedInto).Error; err != nil {
		return fmt.Errorf("failed to repoint properties merged into %s: %w", id, err)
	}

	if err := d.db.Model(&IngestRecord{}).Where("canonical_id = ?", id).
		Update("canonical_id", mergedInto).Error; err != nil {
		return fmt.Errorf("failed to repoint ingests of %s: %w", id, err)
	}
	return nil
}

// Tenants returns every tenant owning at least one active property.
func (d *Database) Tenants() ([]string, error) {
	var tenants []string
	err := d.db.Model(&PropertyRecord{}).
		Where("merged_into IS NULL").
		Distinct().
		Order("tenant_id").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// CountProperties returns the number of active properties of a tenant.
func (d *Database) CountProperties(tenantID string) (int64, error) {
	var count int64
	if err := d.active(tenantID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return count, nil
}

// UpdateScores stores the opportunity score of a search mode on each listed property.
// Only the score column is written.
func (d *Database) UpdateScores(tenantID string, mode models.SearchMode, scores map[string]float64) error {
	var column string
	switch mode {
	case models.SearchModeAcquisition:
		column = "angaria_score"
	case models.SearchModeSale:
		column = "venda_score"
	default:
		return fmt.Errorf("failed to update scores: unknown search mode %q", mode)
	}

	for id, score := range scores {
		err := d.db.Model(&PropertyRecord{}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			UpdateColumn(column, score).Error
		if err != nil {
			return fmt.Errorf("failed to update %s of property %s: %w", column, id, err)
		}
	}
	return nil
}
