package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"propertyhub/server/internal/models"
)

// ReviewRecord is a merge held for human confirmation.
type ReviewRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	TenantID    string `gorm:"not null;index:idx_review_status,priority:1"`
	CandidateID string `gorm:"size:36;not null"`
	IncomingID  string `gorm:"size:36;not null"`
	Probability float64
	Status      string `gorm:"not null;index:idx_review_status,priority:2"`
	ReviewedAt  *time.Time
	CreatedAt   time.Time
}

func (ReviewRecord) TableName() string {
	return "merge_reviews"
}

func (r *ReviewRecord) toModel() models.MergeReview {
	return models.MergeReview{
		ID:          r.ID,
		TenantID:    r.TenantID,
		CandidateID: r.CandidateID,
		IncomingID:  r.IncomingID,
		Probability: r.Probability,
		Status:      models.ReviewStatus(r.Status),
		ReviewedAt:  r.ReviewedAt,
		CreatedAt:   r.CreatedAt,
	}
}

// CreateReview stores a pending review, assigning an id when r has none.
func (d *Database) CreateReview(r *models.MergeReview) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.ReviewStatusPending
	}

	record := ReviewRecord{
		ID:          r.ID,
		TenantID:    r.TenantID,
		CandidateID: r.CandidateID,
		IncomingID:  r.IncomingID,
		Probability: r.Probability,
		Status:      string(r.Status),
		ReviewedAt:  r.ReviewedAt,
		CreatedAt:   r.CreatedAt,
	}
	if err := d.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to create merge review: %w", err)
	}
	r.CreatedAt = record.CreatedAt
	return nil
}

// ListReviews returns a tenant's reviews, oldest first. An empty status lists all of them.
func (d *Database) ListReviews(tenantID string, status models.ReviewStatus) ([]models.MergeReview, error) {
	query := d.db.Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var records []ReviewRecord
	if err := query.Order("created_at, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list merge reviews: %w", err)
	}

	reviews := make([]models.MergeReview, len(records))
	for i := range records {
		reviews[i] = records[i].toModel()
	}
	return reviews, nil
}

// GetReview returns a tenant's review by id.
func (d *Database) GetReview(tenantID, id string) (models.MergeReview, error) {
	var record ReviewRecord
	err := d.db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MergeReview{}, ErrReviewNotFound
	}
	if err != nil {
		return models.MergeReview{}, fmt.Errorf("failed to get merge review: %w", err)
	}
	return record.toModel(), nil
}

// ResolveReview moves a pending review to status. Resolving twice fails with ErrReviewResolved.
func (d *Database) ResolveReview(tenantID, id string, status models.ReviewStatus, at time.Time) (models.MergeReview, error) {
	review, err := d.GetReview(tenantID, id)
	if err != nil {
		return models.MergeReview{}, err
	}
	if review.Status != models.ReviewStatusPending {
		return models.MergeReview{}, ErrReviewResolved
	}

	result := d.db.Model(&ReviewRecord{}).
		Where("id = ? AND status = ?", id, string(models.ReviewStatusPending)).
		Updates(map[string]interface{}{"status": string(status), "reviewed_at": at})
	if result.Error != nil {
		return models.MergeReview{}, fmt.Errorf("failed to resolve merge review: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.MergeReview{}, ErrReviewResolved
	}

	review.Status = status
	review.ReviewedAt = &at
	return review, nil
}
