package processor

import (
	"fmt"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/database"
	"rentals/server/internal/filter"
	"rentals/server/internal/logging"
	"rentals/server/internal/models"
	"rentals/server/internal/queue"
)

// Store is the persistence the alert pipeline needs
type Store interface {
	SetCoordinates(id string, lat, lon float64) error
	MarkGeocodingAttempted(id string) error
	GetAllSavedSearches() ([]models.SavedSearch, error)
}

// Notifier delivers one alert for one saved search
type Notifier interface {
	NotifyNewListing(chatID, searchName string, p *models.Property) error
}

// Alert pairs a new listing with a saved search it satisfies
type Alert struct {
	Property *models.Property
	Search   models.SavedSearch
}

// AlertProcessor consumes newly created listings, geocodes them and
// notifies every saved search they match
type AlertProcessor struct {
	store      Store
	queue      *queue.ListingQueue
	geocoder   database.Geocoder
	notifier   Notifier
	compiler   *filter.Compiler
	config     *config.Config
	logger     *logrus.Logger
	workerPool *workerpool.WorkerPool
}

// NewAlertProcessor wires the pipeline. geocoder and notifier may be nil,
// which disables geocoding or delivery respectively.
func NewAlertProcessor(store Store, q *queue.ListingQueue, geocoder database.Geocoder, notifier Notifier, compiler *filter.Compiler, cfg *config.Config, logger *logrus.Logger) *AlertProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	workers := cfg.Processing.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &AlertProcessor{
		store:      store,
		queue:      q,
		geocoder:   geocoder,
		notifier:   notifier,
		compiler:   compiler,
		config:     cfg,
		logger:     logger,
		workerPool: workerpool.New(workers),
	}
}

// Start subscribes the processor to the listing queue
func (p *AlertProcessor) Start() {
	p.queue.Subscribe(p.processBatch)
}

// Stop waits for every submitted alert to be delivered
func (p *AlertProcessor) Stop() {
	p.workerPool.StopWait()
}

func (p *AlertProcessor) processBatch(batch []*models.Property) error {
	for _, property := range batch {
		p.geocode(property)
	}

	var searches []models.SavedSearch
	err := p.withRetry("load saved searches", func() error {
		var err error
		searches, err = p.store.GetAllSavedSearches()
		return err
	})
	if err != nil {
		return err
	}

	alerts := p.Match(batch, searches)
	for _, alert := range alerts {
		p.dispatch(alert)
	}

	p.logger.WithFields(logrus.Fields{
		"listings": len(batch),
		"searches": len(searches),
		"alerts":   len(alerts),
	}).Info("Processed new listings")
	return nil
}

func (p *AlertProcessor) geocode(property *models.Property) {
	if p.geocoder == nil || property.HasCoordinates() || property.Location == "" {
		return
	}

	lat, lon, err := p.geocoder.GeocodeLocation(property.Location)
	if err != nil {
		p.logger.WithError(err).WithField("property_id", property.ID).Warn("Failed to geocode new listing")
		if err := p.withRetry("mark geocoding attempt", func() error {
			return p.store.MarkGeocodingAttempted(property.ID)
		}); err != nil {
			p.logger.WithError(err).Error("Giving up on geocoding bookkeeping")
		}
		return
	}

	property.Latitude = &lat
	property.Longitude = &lon
	property.GeocodingAttempted = true
	if err := p.withRetry("store coordinates", func() error {
		return p.store.SetCoordinates(property.ID, lat, lon)
	}); err != nil {
		p.logger.WithError(err).Error("Giving up on storing coordinates")
	}
}

// Match returns every (listing, search) pair that should produce an alert.
// Searches without a chat, and searches owned by the listing's owner, never match.
func (p *AlertProcessor) Match(batch []*models.Property, searches []models.SavedSearch) []Alert {
	var alerts []Alert
	for _, property := range batch {
		for _, search := range searches {
			if search.TelegramChatID == "" || search.UserID == property.OwnerID {
				continue
			}
			if !filter.Matches(property, search.Criteria) {
				continue
			}
			if search.Expression != "" {
				ok, err := p.compiler.Evaluate(search.Expression, property)
				if err != nil {
					p.logger.WithError(err).WithField("search_id", search.ID).Warn("Saved search expression failed")
					continue
				}
				if !ok {
					continue
				}
			}
			alerts = append(alerts, Alert{Property: property, Search: search})
		}
	}
	return alerts
}

func (p *AlertProcessor) dispatch(alert Alert) {
	if p.notifier == nil {
		return
	}
	p.workerPool.Submit(func() {
		err := p.notifier.NotifyNewListing(alert.Search.TelegramChatID, alert.Search.Name, alert.Property)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"property_id": alert.Property.ID,
				"search_id":   alert.Search.ID,
			}).Error("Failed to send listing alert")
		}
	})
}

func (p *AlertProcessor) withRetry(step string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.config.Processing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying %s, attempt %d of %d", step, attempt, p.config.Processing.MaxRetries)
			time.Sleep(p.config.Processing.RetryDelay)
		}

		if err = fn(); err == nil {
			return nil
		}
		p.logger.WithError(err).Errorf("Failed to %s", step)
	}

	return fmt.Errorf("failed to %s after %d attempts: %w", step, p.config.Processing.MaxRetries+1, err)
}
