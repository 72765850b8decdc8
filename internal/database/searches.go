package database

import (
	"fmt"

	"github.com/google/uuid"

	"rentals/server/internal/models"
)

func (d *Database) CreateSavedSearch(s *models.SavedSearch) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := d.db.Create(s).Error; err != nil {
		return fmt.Errorf("failed to create saved search: %w", err)
	}
	return nil
}

func (d *Database) GetSavedSearch(id string) (*models.SavedSearch, error) {
	var s models.SavedSearch
	if err := d.db.First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (d *Database) GetSavedSearchesByUser(userID string) ([]models.SavedSearch, error) {
	var searches []models.SavedSearch
	if err := d.db.Where("user_id = ?", userID).Order("created_at").Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("failed to list saved searches: %w", err)
	}
	return searches, nil
}

// GetAllSavedSearches is used by the alert processor
func (d *Database) GetAllSavedSearches() ([]models.SavedSearch, error) {
	var searches []models.SavedSearch
	if err := d.db.Order("created_at").Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("failed to list saved searches: %w", err)
	}
	return searches, nil
}

func (d *Database) UpdateSavedSearch(s *models.SavedSearch) error {
	result := d.db.Model(&models.SavedSearch{}).
		Where("id = ? AND user_id = ?", s.ID, s.UserID).
		Select("name", "criteria", "expression", "telegram_chat_id", "updated_at").
		Updates(s)
	if result.Error != nil {
		return fmt.Errorf("failed to update saved search: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) DeleteSavedSearch(id, userID string) error {
	result := d.db.Delete(&models.SavedSearch{}, "id = ? AND user_id = ?", id, userID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete saved search: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
