package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"propertyhub/server/internal/metrics"
	"propertyhub/server/internal/models"
	"propertyhub/server/internal/ranking"
)

// ErrUnknownMode is returned for a search mode other than acquisition or sale.
var ErrUnknownMode = errors.New("unknown search mode")

// modeNone labels searches that refresh no snapshot
const modeNone = "none"

// Store is the property storage a search reads from and writes snapshots to.
type Store interface {
	LoadPool(tenantID, municipality, typology string) ([]models.CanonicalProperty, error)
	UpdateScores(tenantID string, mode models.SearchMode, scores map[string]float64) error
}

// Result is one ranked search response.
type Result struct {
	Mode models.SearchMode `json:"mode,omitempty"`
	// Matched counts properties that passed the hard filters, before the min-score cut.
	Matched    int                     `json:"matched"`
	Properties []models.ScoredProperty `json:"properties"`
}

// Service ranks a tenant's properties against search criteria
type Service struct {
	store   Store
	engine  *ranking.Engine
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewService creates a new search service
func NewService(store Store, engine *ranking.Engine, m *metrics.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		metrics: m,
		logger:  logger,
	}
}

// Search loads the tenant's active properties, applies the hard filters of criteria,
// ranks the rest and drops results under criteria.MinScore.
//
// When criteria names a mode, every filtered property's final score is persisted as that
// mode's opportunity score, including results later cut by MinScore.
func (s *Service) Search(ctx context.Context, tenantID string, criteria *models.SearchCriteria, behavior ranking.BehaviorSignals) (Result, error) {
	start := time.Now()
	if criteria == nil {
		criteria = &models.SearchCriteria{}
	}
	if criteria.Mode != "" && !criteria.Mode.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMode, criteria.Mode)
	}

	pool, err := s.store.LoadPool(tenantID, "", "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to load properties for search: %w", err)
	}

	filtered := pool[:0]
	for i := range pool {
		if criteria.Matches(&pool[i]) {
			filtered = append(filtered, pool[i])
		}
	}

	scored := s.engine.ScoreAndRank(filtered, criteria, behavior)

	if ranking.Snapshot(scored, criteria.Mode) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		scores := make(map[string]float64, len(scored))
		for _, sp := range scored {
			scores[sp.Property.ID] = sp.FinalScore
		}
		if err := s.store.UpdateScores(tenantID, criteria.Mode, scores); err != nil {
			return Result{}, fmt.Errorf("failed to persist %s scores: %w", criteria.Mode, err)
		}
	}

	result := Result{Mode: criteria.Mode, Matched: len(scored), Properties: scored}
	if criteria.MinScore != nil {
		result.Properties = ranking.FilterMinScore(scored, *criteria.MinScore)
	}

	mode := modeNone
	if criteria.Mode != "" {
		mode = criteria.Mode.String()
	}
	elapsed := time.Since(start)
	s.metrics.ObserveSearch(mode, elapsed.Seconds())

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"mode":      mode,
		"pool":      len(pool),
		"matched":   result.Matched,
		"returned":  len(result.Properties),
		"duration":  elapsed.String(),
	}).Debug("Search completed")
	return result, nil
}
