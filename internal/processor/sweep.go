package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"propertyhub/server/internal/database"
	"propertyhub/server/internal/dedup"
	"propertyhub/server/internal/metrics"
	"propertyhub/server/internal/models"
)

// SweepResult summarizes one tenant-wide dedup pass.
type SweepResult struct {
	TenantID string        `json:"tenant_id"`
	Scanned  int           `json:"scanned"`
	Pairs    int           `json:"pairs"`
	Merged   int           `json:"merged"`
	Duration time.Duration `json:"duration"`
}

// Sweep rescans a tenant's whole active pool and auto-merges every pair above the
// auto-merge threshold. Pairs in the review band are left to the ingest path.
//
// Pairs are applied in descending probability order. A pair whose records were already
// merged together by an earlier pair is skipped; records absorbed elsewhere since the
// pool was loaded are skipped as well.
func (p *DedupProcessor) Sweep(ctx context.Context, tenantID string) (SweepResult, error) {
	start := time.Now()
	result := SweepResult{TenantID: tenantID}

	var pool []models.CanonicalProperty
	err := p.store.Transaction(func(tx *database.Database) error {
		var err error
		pool, err = tx.LoadPool(tenantID, "", "")
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to load pool for tenant %s: %w", tenantID, err)
	}
	result.Scanned = len(pool)

	pairs, err := p.engine.ScanPool(ctx, pool, p.config.Sweep.Workers)
	if err != nil {
		return result, fmt.Errorf("failed to scan pool for tenant %s: %w", tenantID, err)
	}
	result.Pairs = len(pairs)

	err = p.store.Transaction(func(tx *database.Database) error {
		merged, err := p.applyPairs(tx, pool, pairs)
		result.Merged = merged
		return err
	})
	if err != nil {
		return result, fmt.Errorf("failed to apply sweep for tenant %s: %w", tenantID, err)
	}

	result.Duration = time.Since(start)
	for i := 0; i < result.Merged; i++ {
		p.metrics.IncMerges(metrics.TriggerSweep)
	}
	p.metrics.ObserveSweepDuration(result.Duration.Seconds())

	p.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"scanned":   result.Scanned,
		"pairs":     result.Pairs,
		"merged":    result.Merged,
		"duration":  result.Duration.String(),
	}).Info("Completed dedup sweep")
	return result, nil
}

func (p *DedupProcessor) applyPairs(tx *database.Database, pool []models.CanonicalProperty, pairs []dedup.Pair) (int, error) {
	// parent links an absorbed pool index to the index that absorbed it
	parent := make(map[int]int)
	find := func(i int) int {
		for {
			next, ok := parent[i]
			if !ok {
				return i
			}
			i = next
		}
	}

	current := make(map[int]*models.CanonicalProperty)
	load := func(i int) (*models.CanonicalProperty, error) {
		if c, ok := current[i]; ok {
			return c, nil
		}
		fresh, err := tx.GetProperty(pool[i].TenantID, pool[i].ID)
		if errors.Is(err, database.ErrPropertyNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if fresh.ID != pool[i].ID {
			return nil, nil
		}
		current[i] = &fresh
		return &fresh, nil
	}

	merged := 0
	for _, pair := range pairs {
		if pair.Decision != dedup.DecisionAuto {
			continue
		}
		left, right := find(pair.Left), find(pair.Right)
		if left == right {
			continue
		}

		a, err := load(left)
		if err != nil {
			return merged, err
		}
		b, err := load(right)
		if err != nil {
			return merged, err
		}
		if a == nil || b == nil {
			continue
		}

		result, err := p.mergeInto(tx, a, b, pair.Probability)
		if err != nil {
			return merged, err
		}
		// mergeInto retires a when b survives; b's stored row is retired here otherwise
		survivor, absorbed := left, right
		if result.ID == b.ID {
			survivor, absorbed = right, left
		} else if err := tx.RetireProperty(b.ID, result.ID); err != nil {
			return merged, err
		}

		current[survivor] = &result
		delete(current, absorbed)
		parent[absorbed] = survivor
		merged++
	}
	return merged, nil
}

// ResolveReview records a human decision on a pending review. Confirming it merges the
// two properties, following earlier merges of either side.
func (p *DedupProcessor) ResolveReview(tenantID, reviewID string, confirm bool) (models.MergeReview, error) {
	status := models.ReviewStatusRejected
	if confirm {
		status = models.ReviewStatusConfirmed
	}

	var (
		review     models.MergeReview
		mergedPair bool
	)
	err := p.store.Transaction(func(tx *database.Database) error {
		var err error
		review, err = tx.ResolveReview(tenantID, reviewID, status, p.now())
		if err != nil || !confirm {
			return err
		}

		candidate, err := tx.GetProperty(tenantID, review.CandidateID)
		if err != nil {
			return err
		}
		incoming, err := tx.GetProperty(tenantID, review.IncomingID)
		if err != nil {
			return err
		}
		if candidate.ID == incoming.ID {
			return nil
		}

		result, err := p.mergeInto(tx, &candidate, &incoming, review.Probability)
		if err != nil {
			return err
		}
		if result.ID != incoming.ID {
			if err := tx.RetireProperty(incoming.ID, result.ID); err != nil {
				return err
			}
		}
		mergedPair = true
		return nil
	})
	if err != nil {
		return review, err
	}

	if mergedPair {
		p.metrics.IncMerges(metrics.TriggerReview)
	}
	p.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"review_id": reviewID,
		"status":    status,
	}).Info("Resolved merge review")
	return review, nil
}
