package api

import (
	"errors"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"propertyhub/server/internal/database"
	"propertyhub/server/internal/dedup"
	"propertyhub/server/internal/geometry"
	"propertyhub/server/internal/models"
	"propertyhub/server/internal/processor"
	"propertyhub/server/internal/queue"
	"propertyhub/server/internal/ranking"
	"propertyhub/server/internal/search"
)

// TenantHeader carries the tenant every /api request acts for.
const TenantHeader = "X-Tenant-ID"

const tenantKey = "tenant_id"

// maxListLimit caps page sizes of list endpoints
const maxListLimit = 500

type Handler struct {
	db        *database.Database
	logger    *logrus.Logger
	processor *processor.DedupProcessor
	queue     *queue.ListingQueue
	search    *search.Service
	dedup     *dedup.Engine
	maxBatch  int
}

// IngestRequest is a batch of listings for one tenant.
type IngestRequest struct {
	Listings []models.Listing `json:"listings" binding:"required,min=1"`
}

// SearchRequest is search criteria plus optional per-property behavior scores.
type SearchRequest struct {
	models.SearchCriteria
	Behavior map[string]float64 `json:"behavior"`
	Limit    int                `json:"limit"`
}

type ResolveRequest struct {
	Confirm *bool `json:"confirm" binding:"required"`
}

// Candidate is a possible duplicate of a property with its similarity breakdown.
type Candidate struct {
	Property  models.CanonicalProperty `json:"property"`
	Breakdown dedup.Breakdown          `json:"breakdown"`
	Decision  dedup.Decision           `json:"decision"`
}

// NewHandler creates the API handler. maxBatch caps listings per ingest request; 0 disables the cap.
func NewHandler(db *database.Database, p *processor.DedupProcessor, q *queue.ListingQueue, s *search.Service, engine *dedup.Engine, maxBatch int, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		db:        db,
		logger:    logger,
		processor: p,
		queue:     q,
		search:    s,
		dedup:     engine,
		maxBatch:  maxBatch,
	}
}

// RequireTenant rejects requests without a tenant header
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(TenantHeader)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": TenantHeader + " header is required"})
			return
		}
		c.Set(tenantKey, tenantID)
		c.Next()
	}
}

func tenant(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// IngestListings validates a batch and queues it, or resolves it inline with ?wait=true.
func (h *Handler) IngestListings(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse ingest request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if h.maxBatch > 0 && len(req.Listings) > h.maxBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many listings in one request", "max": h.maxBatch})
		return
	}

	tenantID := tenant(c)
	batch := make([]*models.Listing, len(req.Listings))
	for i := range req.Listings {
		listing := &req.Listings[i]
		listing.TenantID = tenantID
		if err := listing.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		batch[i] = listing
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		outcomes, err := h.processor.Process(batch)
		if err != nil {
			h.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to process listings")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process listings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
		return
	}

	if err := h.queue.Push(batch); err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to queue listings")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "queued",
		"count":  len(batch),
	})
}

func (h *Handler) listOptions(c *gin.Context) (database.ListOptions, bool) {
	var opts database.ListOptions
	if err := c.ShouldBindQuery(&opts); err != nil || opts.Limit < 0 || opts.Offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return opts, false
	}
	if opts.Limit == 0 || opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	return opts, true
}

func (h *Handler) GetProperties(c *gin.Context) {
	opts, ok := h.listOptions(c)
	if !ok {
		return
	}

	properties, err := h.db.ListProperties(tenant(c), opts)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return
	}

	c.JSON(http.StatusOK, properties)
}

// GetPropertiesGeoJSON exports the listed properties as a GeoJSON FeatureCollection.
func (h *Handler) GetPropertiesGeoJSON(c *gin.Context) {
	opts, ok := h.listOptions(c)
	if !ok {
		return
	}

	properties, err := h.db.ListProperties(tenant(c), opts)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return
	}

	body, err := geometry.MarshalCollection(geometry.FeatureCollection(properties), properties)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode GeoJSON")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode GeoJSON"})
		return
	}

	c.Data(http.StatusOK, "application/geo+json", body)
}

// getProperty writes the error response itself and reports whether the property was found.
func (h *Handler) getProperty(c *gin.Context) (models.CanonicalProperty, bool) {
	property, err := h.db.GetProperty(tenant(c), c.Param("id"))
	if errors.Is(err, database.ErrPropertyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return property, false
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return property, false
	}
	return property, true
}

func (h *Handler) GetProperty(c *gin.Context) {
	property, ok := h.getProperty(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, property)
}

// GetCandidates lists the likely duplicates of a property, most probable first.
func (h *Handler) GetCandidates(c *gin.Context) {
	property, ok := h.getProperty(c)
	if !ok {
		return
	}

	pool, err := h.db.LoadPool(property.TenantID, property.Location.Municipality, property.Typology)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load candidate pool")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load candidates"})
		return
	}

	candidates := make([]Candidate, 0)
	for _, other := range h.dedup.FindCandidates(&property, pool) {
		other := other
		bd := h.dedup.MatchBreakdown(&property, &other)
		candidates = append(candidates, Candidate{
			Property:  other,
			Breakdown: bd,
			Decision:  h.dedup.ShouldMerge(bd.Probability),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Breakdown.Probability > candidates[j].Breakdown.Probability
	})

	c.JSON(http.StatusOK, candidates)
}

// GetIngests returns the ingest log of a property.
func (h *Handler) GetIngests(c *gin.Context) {
	property, ok := h.getProperty(c)
	if !ok {
		return
	}

	records, err := h.db.IngestsFor(property.TenantID, property.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get ingest log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get ingest log"})
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse search request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must not be negative"})
		return
	}
	for id, score := range req.Behavior {
		if score < 0 || score > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "behavior score of " + id + " must be within 0-100"})
			return
		}
	}

	var behavior ranking.BehaviorSignals
	if len(req.Behavior) > 0 {
		behavior = ranking.BehaviorMap(req.Behavior)
	}

	result, err := h.search.Search(c.Request.Context(), tenant(c), &req.SearchCriteria, behavior)
	if errors.Is(err, search.ErrUnknownMode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to search properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search properties"})
		return
	}

	if req.Limit > 0 && len(result.Properties) > req.Limit {
		result.Properties = result.Properties[:req.Limit]
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetReviews(c *gin.Context) {
	status := models.ReviewStatus(c.Query("status"))
	switch status {
	case "", models.ReviewStatusPending, models.ReviewStatusConfirmed, models.ReviewStatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid review status"})
		return
	}

	reviews, err := h.db.ListReviews(tenant(c), status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get reviews")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get reviews"})
		return
	}

	c.JSON(http.StatusOK, reviews)
}

// ResolveReview confirms (merging both properties) or rejects a pending review.
func (h *Handler) ResolveReview(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirm is required"})
		return
	}

	review, err := h.processor.ResolveReview(tenant(c), c.Param("id"), *req.Confirm)
	switch {
	case errors.Is(err, database.ErrReviewNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Review not found"})
	case errors.Is(err, database.ErrReviewResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "Review already resolved"})
	case err != nil:
		h.logger.WithError(err).Error("Failed to resolve review")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve review"})
	default:
		c.JSON(http.StatusOK, review)
	}
}

// RunSweep rescans the tenant's pool immediately.
func (h *Handler) RunSweep(c *gin.Context) {
	result, err := h.processor.Sweep(c.Request.Context(), tenant(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to run sweep")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run sweep"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		h.logger.WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"queue_depth": h.queue.Len(),
	})
}
