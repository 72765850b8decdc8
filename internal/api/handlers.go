package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/auth"
	"rentals/server/internal/cache"
	"rentals/server/internal/database"
	"rentals/server/internal/events"
	"rentals/server/internal/filter"
	"rentals/server/internal/logging"
	"rentals/server/internal/models"
	"rentals/server/internal/queue"
	"rentals/server/internal/storage"
)

// Deps are the collaborators of the HTTP handlers. Only DB, Tokens and
// Compiler are required; the others fall back to disabled implementations.
type Deps struct {
	DB       *database.Database
	Tokens   *auth.TokenService
	Compiler *filter.Compiler
	Cache    cache.ListingCache
	Events   events.Publisher
	Images   storage.ImageStore
	Queue    *queue.ListingQueue
	Geocoder database.Geocoder
}

type Handler struct {
	db       *database.Database
	logger   *logrus.Logger
	tokens   *auth.TokenService
	compiler *filter.Compiler
	cache    cache.ListingCache
	events   events.Publisher
	images   storage.ImageStore
	queue    *queue.ListingQueue
	geocoder database.Geocoder

	// generation counts listing writes; a listing response read before a
	// write must not be cached after the write's invalidation
	genMu      sync.RWMutex
	generation uint64
}

func NewHandler(deps Deps, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		db:       deps.DB,
		logger:   logger,
		tokens:   deps.Tokens,
		compiler: deps.Compiler,
		cache:    deps.Cache,
		events:   deps.Events,
		images:   deps.Images,
		queue:    deps.Queue,
		geocoder: deps.Geocoder,
	}
	if h.cache == nil {
		h.cache = cache.Noop{}
	}
	if h.events == nil {
		h.events = events.Noop{}
	}
	if h.images == nil {
		h.images = storage.Disabled{}
	}
	return h
}

// fail logs err, if any, and writes the standard error body
func (h *Handler) fail(c *gin.Context, status int, message string, err error) {
	if err != nil {
		entry := h.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})
		if status >= http.StatusInternalServerError {
			entry.Error(message)
		} else {
			entry.Debug(message)
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// failStore maps repository errors onto status codes
func (h *Handler) failStore(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		h.fail(c, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, database.ErrForbidden):
		h.fail(c, http.StatusForbidden, "Forbidden", nil)
	case errors.Is(err, database.ErrDuplicateEmail):
		h.fail(c, http.StatusConflict, "Email already registered", nil)
	case errors.Is(err, models.ErrInvalidTransition):
		h.fail(c, http.StatusConflict, err.Error(), nil)
	default:
		h.fail(c, http.StatusInternalServerError, "Failed to "+action, err)
	}
}

// publish emits an event without failing the request
func (h *Handler) publish(c *gin.Context, routingKey string, payload interface{}) {
	if err := h.events.Publish(c.Request.Context(), routingKey, payload); err != nil {
		h.logger.WithError(err).WithField("routing_key", routingKey).Warn("Failed to publish event")
	}
}

// invalidateListings drops cached listing responses after a write
func (h *Handler) invalidateListings(c *gin.Context) {
	h.bumpListingGeneration()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.WithError(err).Warn("Failed to invalidate listing cache")
	}
}

func (h *Handler) bumpListingGeneration() {
	h.genMu.Lock()
	h.generation++
	h.genMu.Unlock()
}

func (h *Handler) listingGeneration() uint64 {
	h.genMu.RLock()
	defer h.genMu.RUnlock()
	return h.generation
}

// cacheListings stores a listing response unless a write happened since gen was read
func (h *Handler) cacheListings(ctx context.Context, key string, data []byte, gen uint64) {
	h.genMu.RLock()
	defer h.genMu.RUnlock()
	if h.generation != gen {
		return
	}
	h.cache.Set(ctx, key, data)
}

// deleteImages removes stored objects, logging failures
func (h *Handler) deleteImages(ctx context.Context, propertyID string, urls []string) {
	for _, url := range urls {
		if err := h.images.Delete(ctx, url); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"property_id": propertyID,
				"url":         url,
			}).Warn("Failed to delete image")
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetAmenities(c *gin.Context) {
	c.JSON(http.StatusOK, config.GetAmenityNames())
}

// UpdateCoordinates geocodes every listing that has never been attempted
func (h *Handler) UpdateCoordinates(c *gin.Context) {
	if h.geocoder == nil {
		h.fail(c, http.StatusServiceUnavailable, "Geocoding is disabled", nil)
		return
	}

	if err := h.db.UpdateMissingCoordinates(h.geocoder); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to update coordinates", err)
		return
	}
	h.invalidateListings(c)

	c.JSON(http.StatusOK, gin.H{"status": "Coordinates updated"})
}
