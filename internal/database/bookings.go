package database

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rentals/server/internal/models"
)

func (d *Database) CreateBooking(b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = models.BookingPending
	if err := d.db.Create(b).Error; err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (d *Database) GetBooking(id string) (*models.Booking, error) {
	var b models.Booking
	if err := d.db.First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// GetBookingsByRenter lists a renter's inquiries, newest first
func (d *Database) GetBookingsByRenter(renterID string, status models.BookingStatus) ([]models.Booking, error) {
	query := d.db.Where("renter_id = ?", renterID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var bookings []models.Booking
	if err := query.Order("created_at DESC").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to list renter bookings: %w", err)
	}
	return bookings, nil
}

// GetBookingsForOwner lists inquiries on every listing of an owner, newest first
func (d *Database) GetBookingsForOwner(ownerID string, status models.BookingStatus) ([]models.Booking, error) {
	query := d.db.
		Joins("JOIN properties ON properties.id = bookings.property_id").
		Where("properties.owner_id = ?", ownerID)
	if status != "" {
		query = query.Where("bookings.status = ?", status)
	}

	var bookings []models.Booking
	if err := query.Order("bookings.created_at DESC").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to list owner bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingStatus decides a pending booking. Only the owner of the booked listing
// may do so; a booking that was already decided returns models.ErrInvalidTransition.
func (d *Database) UpdateBookingStatus(id, ownerID string, status models.BookingStatus) (*models.Booking, error) {
	var updated models.Booking

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		var property models.Property
		if err := tx.Select("id", "owner_id").First(&property, "id = ?", updated.PropertyID).Error; err != nil {
			return translate(err)
		}
		if property.OwnerID != ownerID {
			return ErrForbidden
		}

		if err := updated.Transition(status); err != nil {
			return err
		}

		return tx.Model(&updated).Update("status", updated.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
