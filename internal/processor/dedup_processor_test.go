package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"propertyhub/server/config"
	"propertyhub/server/internal/database"
	"propertyhub/server/internal/dedup"
	"propertyhub/server/internal/metrics"
	"propertyhub/server/internal/models"
	"propertyhub/server/internal/queue"
	"propertyhub/server/internal/ranking"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Transaction(fn func(tx *database.Database) error) error {
	args := m.Called(fn)
	return args.Error(0)
}

const kmPerDegreeLat = 111.19492664455873

var (
	t0    = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	clock = time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 2
	cfg.BatchProcessing.MaxRetries = 3
	cfg.BatchProcessing.RetryDelay = 0
	cfg.Sweep.Workers = 2
	return cfg
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestProcessor(store Store, cfg *config.Config) *DedupProcessor {
	engine := dedup.NewEngine(dedup.DefaultConfig()).WithClock(func() time.Time { return clock })
	p := NewDedupProcessor(store, queue.NewListingQueue(10, testLogger()), engine, cfg, metrics.NewMetrics(), testLogger())
	p.now = func() time.Time { return clock }
	return p
}

func testListing(id, source string, lastSeen time.Time) *models.Listing {
	return &models.Listing{
		TenantID:        "tenant-1",
		SourceType:      models.SourceTypePortal,
		SourceName:      source,
		SourceListingID: id,
		URL:             "https://" + source + ".example/" + id,
		LastSeen:        lastSeen,
		Price:           300000,
		Location: models.Location{
			Latitude:     38.7223,
			Longitude:    -9.1393,
			District:     "Lisboa",
			Municipality: "Lisboa",
			Parish:       "Estrela",
		},
		Characteristics: models.Characteristics{
			Typology:  "T2",
			Area:      80,
			Bedrooms:  2,
			Bathrooms: 1,
			Features:  []models.Feature{{Type: "elevator"}, {Type: "balcony"}},
		},
	}
}

func TestProcess_NewThenAutoMerge(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	first, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, DecisionNew, first[0].Decision)

	second, err := p.Process([]*models.Listing{testListing("X-9", "imovirtual", t0.Add(24*time.Hour))})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, dedup.DecisionAuto.String(), second[0].Decision)
	assert.Equal(t, first[0].CanonicalID, second[0].CanonicalID)
	assert.InDelta(t, 1.0, second[0].Probability, 1e-9)

	pool, err := db.LoadPool("tenant-1", "Lisboa", "T2")
	require.NoError(t, err)
	require.Len(t, pool, 1)

	merged := pool[0]
	assert.Equal(t, first[0].CanonicalID, merged.ID)
	assert.Equal(t, 2, merged.PortalCount)
	assert.Len(t, merged.Sources, 2)
	assert.True(t, merged.FirstSeen.Equal(t0))
	assert.True(t, merged.LastSeen.Equal(t0.Add(24*time.Hour)))
	require.Len(t, merged.Events, 3)
	assert.Equal(t, models.EventSourceAdded, merged.Events[0].Type)

	ingests, err := db.IngestsFor("tenant-1", merged.ID)
	require.NoError(t, err)
	assert.Len(t, ingests, 2)
}

func TestProcess_ReviewThenConfirm(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	nearby := testListing("C-7", "casasapo", t0.Add(time.Hour))
	nearby.Location.Latitude += 0.03 / kmPerDegreeLat
	nearby.Characteristics.Features = []models.Feature{{Type: "elevator"}, {Type: "garage"}}

	outcomes, err := p.Process([]*models.Listing{nearby})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, dedup.DecisionReview.String(), outcomes[0].Decision)
	assert.InDelta(t, 0.8333, outcomes[0].Probability, 0.001)
	require.NotEmpty(t, outcomes[0].ReviewID)

	pool, err := db.LoadPool("tenant-1", "Lisboa", "T2")
	require.NoError(t, err)
	assert.Len(t, pool, 2)

	review, err := p.ResolveReview("tenant-1", outcomes[0].ReviewID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusConfirmed, review.Status)

	pool, err = db.LoadPool("tenant-1", "Lisboa", "T2")
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, outcomes[0].CandidateID, pool[0].ID)
	assert.Equal(t, 2, pool[0].PortalCount)
	assert.True(t, pool[0].HasFeature("garage"))

	// the absorbed id now resolves to the survivor
	got, err := db.GetProperty("tenant-1", outcomes[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, pool[0].ID, got.ID)

	_, err = p.ResolveReview("tenant-1", outcomes[0].ReviewID, false)
	assert.ErrorIs(t, err, database.ErrReviewResolved)
}

func TestProcess_RejectedReviewKeepsBoth(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	nearby := testListing("C-7", "casasapo", t0)
	nearby.Location.Latitude += 0.03 / kmPerDegreeLat
	nearby.Characteristics.Features = nil
	outcomes, err := p.Process([]*models.Listing{nearby})
	require.NoError(t, err)
	require.Equal(t, dedup.DecisionReview.String(), outcomes[0].Decision)

	review, err := p.ResolveReview("tenant-1", outcomes[0].ReviewID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusRejected, review.Status)

	pool, err := db.LoadPool("tenant-1", "", "")
	require.NoError(t, err)
	assert.Len(t, pool, 2)
}

func TestProcess_OtherMunicipalityStaysSeparate(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	oeiras := testListing("O-1", "idealista", t0)
	oeiras.Location.Municipality = "Oeiras"

	outcomes, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0), oeiras})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, DecisionNew, outcomes[0].Decision)
	assert.Equal(t, DecisionNew, outcomes[1].Decision)

	pool, err := db.LoadPool("tenant-1", "", "")
	require.NoError(t, err)
	assert.Len(t, pool, 2)
}

func TestProcess_EarlierListingTakesOver(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	late, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	early, err := p.Process([]*models.Listing{testListing("E-1", "olx", t0.Add(-72*time.Hour))})
	require.NoError(t, err)
	require.Equal(t, dedup.DecisionAuto.String(), early[0].Decision)
	assert.NotEqual(t, late[0].CanonicalID, early[0].CanonicalID)

	got, err := db.GetProperty("tenant-1", late[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, early[0].CanonicalID, got.ID)
	assert.True(t, got.FirstSeen.Equal(t0.Add(-72*time.Hour)))

	// the ingest of the retired record moves to the survivor
	ingests, err := db.IngestsFor("tenant-1", got.ID)
	require.NoError(t, err)
	require.Len(t, ingests, 2)
	assert.Equal(t, "L-1", ingests[0].SourceListingID)
	assert.Equal(t, "E-1", ingests[1].SourceListingID)
}

func TestProcess_ReingestRefreshesOwnSource(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	first, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	for day := 1; day <= 3; day++ {
		outcomes, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0.AddDate(0, 0, day))})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, DecisionSeen, outcomes[0].Decision)
		assert.Equal(t, first[0].CanonicalID, outcomes[0].CanonicalID)
	}

	pool, err := db.LoadPool("tenant-1", "", "")
	require.NoError(t, err)
	require.Len(t, pool, 1)

	property := pool[0]
	assert.Equal(t, 1, property.PortalCount)
	require.Len(t, property.Sources, 1)
	assert.True(t, property.Sources[0].LastSeen.Equal(t0.AddDate(0, 0, 3)))
	assert.True(t, property.FirstSeen.Equal(t0))
	assert.True(t, property.LastSeen.Equal(t0.AddDate(0, 0, 3)))
	assert.Equal(t, 300000.0, property.PriceMain)
	require.Len(t, property.Events, 1, "unchanged price adds no events")
	assert.Equal(t, models.EventListed, property.Events[0].Type)

	ingests, err := db.IngestsFor("tenant-1", property.ID)
	require.NoError(t, err)
	assert.Len(t, ingests, 4)

	rank := ranking.NewEngine(ranking.DefaultWeights()).WithClock(func() time.Time { return clock })
	assert.NotContains(t, rank.Reasons(&property, 50, rank.TemporalScore(&property), nil), ranking.ReasonMultiPortal)
}

func TestProcess_ReingestRecordsPriceChange(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	cheaper := testListing("L-1", "idealista", t0.AddDate(0, 0, 2))
	cheaper.Price = 285000
	outcomes, err := p.Process([]*models.Listing{cheaper})
	require.NoError(t, err)
	assert.Equal(t, DecisionSeen, outcomes[0].Decision)

	got, err := db.GetProperty("tenant-1", outcomes[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PortalCount)
	assert.Equal(t, 285000.0, got.PriceMain)
	assert.Equal(t, 285000.0, got.PriceMin)
	assert.Equal(t, 300000.0, got.PriceMax)
	require.NotNil(t, got.Sources[0].Price)
	assert.Equal(t, 285000.0, *got.Sources[0].Price)

	require.Len(t, got.Events, 2)
	assert.Equal(t, models.EventPriceChange, got.Events[0].Type)
	assert.Equal(t, 285000.0, got.Events[0].Payload["price"])
	assert.Equal(t, 300000.0, got.Events[0].Payload["previous_price"])
}

func TestProcess_ReingestAfterGapIsRelisted(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	outcomes, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0.AddDate(0, 2, 0))})
	require.NoError(t, err)

	got, err := db.GetProperty("tenant-1", outcomes[0].CanonicalID)
	require.NoError(t, err)
	require.Len(t, got.Events, 2)
	assert.Equal(t, models.EventRelisted, got.Events[0].Type)
	assert.True(t, got.FirstSeen.Equal(t0))
}

func TestProcess_StaleReingestChangesNothing(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	stale := testListing("L-1", "idealista", t0.Add(-time.Hour))
	stale.Price = 250000
	outcomes, err := p.Process([]*models.Listing{stale})
	require.NoError(t, err)
	assert.Equal(t, DecisionSeen, outcomes[0].Decision)

	got, err := db.GetProperty("tenant-1", outcomes[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, 300000.0, got.PriceMin)
	assert.True(t, got.LastSeen.Equal(t0))
	assert.Len(t, got.Events, 1)
}

func TestProcess_ReingestInSameBatch(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	outcomes, err := p.Process([]*models.Listing{
		testListing("L-1", "idealista", t0),
		testListing("L-1", "idealista", t0.Add(time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, DecisionNew, outcomes[0].Decision)
	assert.Equal(t, DecisionSeen, outcomes[1].Decision)

	pool, err := db.LoadPool("tenant-1", "", "")
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, 1, pool[0].PortalCount)
}

func TestProcess_ReingestFollowsMerge(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)
	merged, err := p.Process([]*models.Listing{testListing("X-9", "imovirtual", t0.Add(time.Hour))})
	require.NoError(t, err)
	require.Equal(t, dedup.DecisionAuto.String(), merged[0].Decision)

	availability := 0.9
	again := testListing("X-9", "imovirtual", t0.AddDate(0, 0, 1))
	again.AvailabilityProbability = &availability
	outcomes, err := p.Process([]*models.Listing{again})
	require.NoError(t, err)
	assert.Equal(t, DecisionSeen, outcomes[0].Decision)
	assert.Equal(t, merged[0].CanonicalID, outcomes[0].CanonicalID)

	got, err := db.GetProperty("tenant-1", outcomes[0].CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PortalCount)
	assert.Len(t, got.Sources, 2)
	assert.True(t, got.LastSeen.Equal(t0.AddDate(0, 0, 1)))
	require.NotNil(t, got.AvailabilityProbability)
	assert.Equal(t, 0.9, *got.AvailabilityProbability)

	var types []models.MarketEventType
	for _, e := range got.Events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, models.EventAvailabilityChange)
	assert.NotContains(t, types, models.EventPriceChange)
}

func TestProcess_RetriesThenSucceeds(t *testing.T) {
	store := &MockStore{}
	p := newTestProcessor(store, testConfig())

	store.On("Transaction", mock.Anything).Return(errors.New("database is locked")).Twice()
	store.On("Transaction", mock.Anything).Return(nil).Once()

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	assert.NoError(t, err)
	store.AssertNumberOfCalls(t, "Transaction", 3)
}

func TestProcess_GivesUpAfterMaxRetries(t *testing.T) {
	store := &MockStore{}
	p := newTestProcessor(store, testConfig())

	store.On("Transaction", mock.Anything).Return(errors.New("db error"))

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch after 3 attempts")
	store.AssertNumberOfCalls(t, "Transaction", 4)
}

func TestProcess_StopAbortsRetryWait(t *testing.T) {
	store := &MockStore{}
	cfg := testConfig()
	cfg.BatchProcessing.RetryDelay = 60
	p := newTestProcessor(store, cfg)

	store.On("Transaction", mock.Anything).Return(errors.New("db error"))
	p.Stop()

	start := time.Now()
	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch processing stopped")
	assert.Less(t, time.Since(start), 5*time.Second)
	store.AssertNumberOfCalls(t, "Transaction", 1)
}

func TestProcess_FailedBatchRollsBack(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	cfg.BatchProcessing.MaxRetries = 0
	p := newTestProcessor(db, cfg)

	_, err := p.Process([]*models.Listing{testListing("L-1", "idealista", t0)})
	require.NoError(t, err)

	// the review insert of the second listing fails after the first was saved
	require.NoError(t, db.GetDB().Migrator().DropTable(&database.ReviewRecord{}))

	oeiras := testListing("O-1", "idealista", t0)
	oeiras.Location.Municipality = "Oeiras"
	nearby := testListing("C-7", "casasapo", t0)
	nearby.Location.Latitude += 0.03 / kmPerDegreeLat
	nearby.Characteristics.Features = nil

	_, err = p.Process([]*models.Listing{oeiras, nearby})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch after 0 attempts")

	pool, err := db.LoadPool("tenant-1", "", "")
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "Lisboa", pool[0].Location.Municipality)
}

func TestSweep_MergesPoolDuplicates(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	base := models.FromListing(*testListing("L-1", "idealista", t0), "a")
	copies := []models.CanonicalProperty{
		base,
		models.FromListing(*testListing("I-1", "imovirtual", t0.Add(time.Hour)), "b"),
		models.FromListing(*testListing("C-1", "casasapo", t0.Add(2*time.Hour)), "c"),
	}
	porto := models.FromListing(*testListing("P-1", "idealista", t0), "porto")
	porto.Location.Municipality = "Porto"
	copies = append(copies, porto)

	for i := range copies {
		require.NoError(t, db.SaveProperty(&copies[i]))
	}

	result, err := p.Sweep(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 3, result.Pairs)
	assert.Equal(t, 2, result.Merged)

	pool, err := db.LoadPool("tenant-1", "", "")
	require.NoError(t, err)
	require.Len(t, pool, 2)

	lisbon, err := db.GetProperty("tenant-1", "c")
	require.NoError(t, err)
	assert.Equal(t, "a", lisbon.ID)
	assert.Equal(t, 3, lisbon.PortalCount)
	assert.Len(t, lisbon.Sources, 3)

	// a second sweep finds nothing left to merge
	again, err := p.Sweep(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Merged)
}

func TestSweep_Cancelled(t *testing.T) {
	db := setupTestDB(t)
	p := newTestProcessor(db, testConfig())

	a := models.FromListing(*testListing("L-1", "idealista", t0), "a")
	require.NoError(t, db.SaveProperty(&a))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Sweep(ctx, "tenant-1")
	assert.ErrorIs(t, err, context.Canceled)
}
