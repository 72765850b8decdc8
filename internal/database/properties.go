package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rentals/server/internal/models"
)

// Geocoder resolves a free-text location to coordinates
type Geocoder interface {
	GeocodeLocation(location string) (float64, float64, error)
}

func (d *Database) CreateProperty(p *models.Property) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := d.db.Create(p).Error; err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

func (d *Database) GetProperty(id string) (*models.Property, error) {
	var p models.Property
	if err := d.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetAllProperties returns every listing in insertion order
func (d *Database) GetAllProperties() ([]models.Property, error) {
	var properties []models.Property
	if err := d.db.Order("rowid").Find(&properties).Error; err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return properties, nil
}

func (d *Database) GetPropertiesByOwner(ownerID string) ([]models.Property, error) {
	var properties []models.Property
	err := d.db.Where("owner_id = ?", ownerID).Order("rowid").Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owner properties: %w", err)
	}
	return properties, nil
}

// UpdateProperty persists every column of p
func (d *Database) UpdateProperty(p *models.Property) error {
	result := d.db.Model(&models.Property{}).Where("id = ?", p.ID).Select("*").Omit("created_at").Updates(p)
	if result.Error != nil {
		return fmt.Errorf("failed to update property: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) DeleteProperty(id string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Property{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete property: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Delete(&models.Booking{}, "property_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete property bookings: %w", err)
		}
		return nil
	})
}

// UpsertProperties inserts a batch of listings, replacing rows with the same id
func UpsertProperties(tx *gorm.DB, properties []*models.Property) error {
	if len(properties) == 0 {
		return nil
	}
	for _, p := range properties {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&properties).Error
	if err != nil {
		return fmt.Errorf("failed to upsert properties: %w", err)
	}
	return nil
}

func (d *Database) UpsertProperties(properties []*models.Property) error {
	return UpsertProperties(d.db, properties)
}

// SetCoordinates stores a geocoding result and marks the listing as attempted
func (d *Database) SetCoordinates(id string, lat, lon float64) error {
	err := d.db.Model(&models.Property{}).Where("id = ?", id).Updates(map[string]interface{}{
		"latitude":            lat,
		"longitude":           lon,
		"geocoding_attempted": true,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update coordinates: %w", err)
	}
	return nil
}

func (d *Database) MarkGeocodingAttempted(id string) error {
	err := d.db.Model(&models.Property{}).Where("id = ?", id).Update("geocoding_attempted", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark geocoding attempt: %w", err)
	}
	return nil
}

// UpdateMissingCoordinates geocodes, in batches, every listing that has never been attempted
func (d *Database) UpdateMissingCoordinates(geocoder Geocoder) error {
	var totalCount int64
	err := d.db.Model(&models.Property{}).
		Where("geocoding_attempted = ? AND location <> ''", false).
		Count(&totalCount).Error
	if err != nil {
		return fmt.Errorf("failed to count properties: %w", err)
	}

	if totalCount == 0 {
		d.logger.Debug("No properties need geocoding")
		return nil
	}

	d.logger.Infof("Found %d properties that need geocoding", totalCount)

	var processed, failed int
	const batchSize = 10
	started := time.Now()

	for int64(processed+failed) < totalCount {
		var batch []models.Property
		err := d.db.Select("id", "location").
			Where("geocoding_attempted = ? AND location <> ''", false).
			Limit(batchSize).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("failed to query properties: %w", err)
		}

		// Another writer may have geocoded the remainder in the meantime
		if len(batch) == 0 {
			break
		}

		for _, p := range batch {
			lat, lon, err := geocoder.GeocodeLocation(p.Location)
			if err != nil {
				d.logger.WithError(err).WithField("location", p.Location).Warn("Failed to geocode property")
				if err := d.MarkGeocodingAttempted(p.ID); err != nil {
					return err
				}
				failed++
				continue
			}

			if err := d.SetCoordinates(p.ID, lat, lon); err != nil {
				return err
			}
			processed++
		}

		d.logger.WithFields(logrus.Fields{
			"processed": processed,
			"failed":    failed,
			"total":     totalCount,
		}).Info("Geocoding progress")
	}

	d.logger.WithFields(logrus.Fields{
		"processed": processed,
		"failed":    failed,
		"duration":  time.Since(started).String(),
	}).Info("Geocoding completed")

	return nil
}
