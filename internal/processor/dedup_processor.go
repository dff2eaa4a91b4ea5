package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"propertyhub/server/config"
	"propertyhub/server/internal/database"
	"propertyhub/server/internal/dedup"
	"propertyhub/server/internal/metrics"
	"propertyhub/server/internal/models"
	"propertyhub/server/internal/queue"
)

// DecisionNew marks a listing that matched nothing and became its own canonical property.
const DecisionNew = "new"

// Store runs work inside a database transaction.
type Store interface {
	Transaction(fn func(tx *database.Database) error) error
}

// Outcome is what happened to one listing of a batch.
type Outcome struct {
	SourceName      string  `json:"source_name"`
	SourceListingID string  `json:"source_listing_id"`
	CanonicalID     string  `json:"canonical_id"`
	Decision        string  `json:"decision"`
	Probability     float64 `json:"probability,omitempty"`
	CandidateID     string  `json:"candidate_id,omitempty"`
	ReviewID        string  `json:"review_id,omitempty"`
}

// DedupProcessor resolves incoming listings against the canonical property pool
type DedupProcessor struct {
	store   Store
	engine  *dedup.Engine
	logger  *logrus.Logger
	config  *config.Config
	metrics *metrics.Metrics
	queue   *queue.ListingQueue
	newID   func() string
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDedupProcessor creates a new processor instance
func NewDedupProcessor(store Store, q *queue.ListingQueue, engine *dedup.Engine, cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) *DedupProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &DedupProcessor{
		store:   store,
		engine:  engine,
		logger:  logger,
		config:  cfg,
		metrics: m,
		queue:   q,
		newID:   uuid.NewString,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the queue and starts its consumers
func (p *DedupProcessor) Start() {
	p.queue.Subscribe(func(batch []*models.Listing) error {
		_, err := p.Process(batch)
		return err
	})
	p.queue.Start(p.config.BatchProcessing.ProcessorCount)
}

// Stop aborts pending retries. Close the queue first to drain queued batches.
func (p *DedupProcessor) Stop() {
	p.cancel()
}

// Process resolves a batch inside one transaction, retrying the whole batch on failure
func (p *DedupProcessor) Process(batch []*models.Listing) ([]Outcome, error) {
	start := time.Now()
	var (
		outcomes []Outcome
		err      error
	)

	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			select {
			case <-p.ctx.Done():
				return nil, fmt.Errorf("batch processing stopped: %w", err)
			case <-time.After(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second):
			}
		}

		outcomes = outcomes[:0]
		err = p.store.Transaction(func(tx *database.Database) error {
			for _, listing := range batch {
				outcome, err := p.resolve(tx, listing)
				if err != nil {
					return fmt.Errorf("failed to resolve listing %s/%s: %w", listing.SourceName, listing.SourceListingID, err)
				}
				outcomes = append(outcomes, outcome)
			}
			return nil
		})

		if err == nil {
			p.record(outcomes)
			p.metrics.ObserveBatchDuration(metrics.StatusSuccess, time.Since(start).Seconds())
			p.logger.WithField("batch_size", len(batch)).Info("Successfully processed listing batch")
			return outcomes, nil
		}

		p.logger.WithError(err).Error("Batch processing failed")
	}

	p.metrics.ObserveBatchDuration(metrics.StatusFailure, time.Since(start).Seconds())
	return nil, fmt.Errorf("failed to process batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries, err)
}

// resolve canonicalizes one listing and applies the dedup decision against its pool.
// A portal listing that was ingested before only refreshes the property it resolved to.
func (p *DedupProcessor) resolve(tx *database.Database, listing *models.Listing) (Outcome, error) {
	previous, known, err := tx.FindIngest(listing.TenantID, listing.SourceName, listing.SourceListingID)
	if err != nil {
		return Outcome{}, err
	}
	if known {
		outcome, ok, err := p.reobserve(tx, listing, previous)
		if err != nil {
			return outcome, err
		}
		if ok {
			return outcome, p.recordIngest(tx, listing, outcome)
		}
	}

	incoming := models.FromListing(*listing, p.newID())
	outcome := Outcome{
		SourceName:      listing.SourceName,
		SourceListingID: listing.SourceListingID,
		CanonicalID:     incoming.ID,
		Decision:        DecisionNew,
	}

	pool, err := tx.LoadPool(listing.TenantID, incoming.Location.Municipality, incoming.Typology)
	if err != nil {
		return outcome, err
	}

	match, found := p.engine.BestMatch(&incoming, pool)
	if found && match.Decision != dedup.DecisionNone {
		outcome.Probability = match.Probability
		outcome.CandidateID = match.Candidate.ID
	}

	switch {
	case found && match.Decision == dedup.DecisionAuto:
		merged, err := p.mergeInto(tx, &match.Candidate, &incoming, match.Probability)
		if err != nil {
			return outcome, err
		}
		outcome.CanonicalID = merged.ID
		outcome.Decision = dedup.DecisionAuto.String()

	case found && match.Decision == dedup.DecisionReview:
		if err := tx.SaveProperty(&incoming); err != nil {
			return outcome, err
		}
		review := models.MergeReview{
			TenantID:    listing.TenantID,
			CandidateID: match.Candidate.ID,
			IncomingID:  incoming.ID,
			Probability: match.Probability,
			Status:      models.ReviewStatusPending,
			CreatedAt:   p.now(),
		}
		if err := tx.CreateReview(&review); err != nil {
			return outcome, err
		}
		outcome.Decision = dedup.DecisionReview.String()
		outcome.ReviewID = review.ID

	default:
		if err := tx.SaveProperty(&incoming); err != nil {
			return outcome, err
		}
	}

	return outcome, p.recordIngest(tx, listing, outcome)
}

func (p *DedupProcessor) recordIngest(tx *database.Database, listing *models.Listing, outcome Outcome) error {
	return tx.RecordIngest(&database.IngestRecord{
		TenantID:        listing.TenantID,
		SourceName:      listing.SourceName,
		SourceListingID: listing.SourceListingID,
		CanonicalID:     outcome.CanonicalID,
		Decision:        outcome.Decision,
		Probability:     outcome.Probability,
		ReceivedAt:      p.now(),
	})
}

// mergeInto merges two stored or pending properties, saves the result and retires whichever
// stored record did not survive. absorbed may be a record that was never saved.
func (p *DedupProcessor) mergeInto(tx *database.Database, existing, absorbed *models.CanonicalProperty, probability float64) (models.CanonicalProperty, error) {
	merged := p.engine.Merge(existing, absorbed)
	merged.Events = append(merged.Events, models.MarketEvent{
		Type:      models.EventSourceAdded,
		Timestamp: p.now(),
		Payload: map[string]interface{}{
			"merged_id":   loser(merged.ID, existing.ID, absorbed.ID),
			"probability": probability,
		},
	})
	models.SortEventsNewestFirst(merged.Events)

	if err := tx.SaveProperty(&merged); err != nil {
		return merged, err
	}
	if merged.ID != existing.ID {
		if err := tx.RetireProperty(existing.ID, merged.ID); err != nil {
			return merged, err
		}
	}
	return merged, nil
}

func loser(survivor, a, b string) string {
	if survivor == a {
		return b
	}
	return a
}

// record updates the counters once a batch has committed
func (p *DedupProcessor) record(outcomes []Outcome) {
	for _, o := range outcomes {
		p.metrics.IncListingsIngested(o.Decision)
		switch o.Decision {
		case dedup.DecisionAuto.String():
			p.metrics.IncMerges(metrics.TriggerIngest)
		case dedup.DecisionReview.String():
			p.metrics.IncReviewsCreated()
		}
		p.logger.WithFields(logrus.Fields{
			"source":       o.SourceName,
			"listing_id":   o.SourceListingID,
			"canonical_id": o.CanonicalID,
			"decision":     o.Decision,
			"probability":  o.Probability,
		}).Debug("Resolved listing")
	}
}
