package dedup

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"propertyhub/server/internal/models"
)

// Pair is a pool-wide match between two properties, identified by their pool positions.
type Pair struct {
	Left        int      `json:"left"`
	Right       int      `json:"right"`
	LeftID      string   `json:"left_id"`
	RightID     string   `json:"right_id"`
	Probability float64  `json:"probability"`
	Decision    Decision `json:"decision"`
}

// ScanPool runs the pairwise candidate scan over the whole pool and returns every pair
// classified as auto or review. Rows are sharded across workers; each pair (i, j) with
// i < j is examined once, with pool[i] as the pre-filter target.
//
// The result is ordered by probability descending, then by pool position, so it does not
// depend on the worker count. The context is checked between rows only.
func (e *Engine) ScanPool(ctx context.Context, pool []models.CanonicalProperty, workers int) ([]Pair, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := make(chan int)
	results := make([][]Pair, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range rows {
				results[w] = append(results[w], e.scanRow(pool, i)...)
			}
		}(w)
	}

	var err error
feed:
	for i := range pool {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case rows <- i:
		}
	}
	close(rows)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	var pairs []Pair
	for _, r := range results {
		pairs = append(pairs, r...)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].Probability != pairs[b].Probability {
			return pairs[a].Probability > pairs[b].Probability
		}
		if pairs[a].Left != pairs[b].Left {
			return pairs[a].Left < pairs[b].Left
		}
		return pairs[a].Right < pairs[b].Right
	})
	return pairs, nil
}

func (e *Engine) scanRow(pool []models.CanonicalProperty, i int) []Pair {
	var pairs []Pair
	target := &pool[i]
	for j := i + 1; j < len(pool); j++ {
		other := &pool[j]
		if other.ID == target.ID || !e.IsCandidate(target, other) {
			continue
		}
		p := e.MatchProbability(target, other)
		decision := e.ShouldMerge(p)
		if decision == DecisionNone {
			continue
		}
		pairs = append(pairs, Pair{
			Left:        i,
			Right:       j,
			LeftID:      target.ID,
			RightID:     other.ID,
			Probability: p,
			Decision:    decision,
		})
	}
	return pairs
}
