package database

import (
	"fmt"

	"rentals/server/internal/models"
)

type groupCount struct {
	Name  string
	Count int64
}

// GetPropertyStats aggregates the admin dashboard numbers
func (d *Database) GetPropertyStats() (*models.PropertyStats, error) {
	stats := &models.PropertyStats{
		UsersByRole:      make(map[string]int64),
		BookingsByStatus: make(map[string]int64),
	}

	var roles []groupCount
	err := d.db.Model(&models.User{}).
		Select("role AS name, COUNT(*) AS count").
		Group("role").
		Scan(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	for _, r := range roles {
		stats.UsersByRole[r.Name] = r.Count
		stats.TotalUsers += r.Count
	}

	err = d.db.Model(&models.User{}).
		Where("role = ? AND is_approved = ? AND status = ?", models.RoleOwner, false, models.UserStatusActive).
		Count(&stats.PendingOwners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pending owners: %w", err)
	}

	if err := d.db.Model(&models.Property{}).Count(&stats.TotalProperties).Error; err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}
	err = d.db.Model(&models.Property{}).Where("is_available = ?", true).Count(&stats.AvailableListings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count available properties: %w", err)
	}

	var avg struct{ Value *float64 }
	if err := d.db.Model(&models.Property{}).Select("AVG(price) AS value").Scan(&avg).Error; err != nil {
		return nil, fmt.Errorf("failed to compute average price: %w", err)
	}
	if avg.Value != nil {
		stats.AveragePrice = *avg.Value
	}

	var statuses []groupCount
	err = d.db.Model(&models.Booking{}).
		Select("status AS name, COUNT(*) AS count").
		Group("status").
		Scan(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	for _, s := range statuses {
		stats.BookingsByStatus[s.Name] = s.Count
	}

	if err := d.db.Model(&models.Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	return stats, nil
}
