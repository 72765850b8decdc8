package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentals/server/internal/models"
)

func (d *Database) CreateUser(u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}

	if _, err := d.GetUserByEmail(u.Email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := d.db.Create(u).Error; err != nil {
		if translated := translate(err); errors.Is(translated, ErrDuplicateEmail) {
			return translated
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (d *Database) GetUserByID(id string) (*models.User, error) {
	var u models.User
	if err := d.db.First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (d *Database) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := d.db.First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpdateUser saves the profile fields of u. The email stays unique across accounts.
func (d *Database) UpdateUser(u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	if existing, err := d.GetUserByEmail(u.Email); err == nil && existing.ID != u.ID {
		return ErrDuplicateEmail
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	u.UpdatedAt = time.Now()
	result := d.db.Model(&models.User{}).
		Where("id = ?", u.ID).
		Select("name", "email", "phone", "updated_at").
		Updates(u)
	if result.Error != nil {
		if translated := translate(result.Error); errors.Is(translated, ErrDuplicateEmail) {
			return translated
		}
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUsers lists users, optionally restricted to one role
func (d *Database) GetUsers(role models.Role) ([]models.User, error) {
	query := d.db.Order("created_at")
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetPendingOwners lists owners still waiting for admin approval
func (d *Database) GetPendingOwners() ([]models.User, error) {
	var users []models.User
	err := d.db.
		Where("role = ? AND is_approved = ? AND status = ?", models.RoleOwner, false, models.UserStatusActive).
		Order("created_at").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending owners: %w", err)
	}
	return users, nil
}

// ApproveOwner marks an owner account as allowed to publish listings
func (d *Database) ApproveOwner(id string) (*models.User, error) {
	return d.updateOwner(id, map[string]interface{}{
		"is_approved": true,
		"status":      models.UserStatusActive,
	})
}

// RejectOwner removes an owner from the approval queue
func (d *Database) RejectOwner(id string) (*models.User, error) {
	return d.updateOwner(id, map[string]interface{}{
		"is_approved": false,
		"status":      models.UserStatusRejected,
	})
}

func (d *Database) updateOwner(id string, fields map[string]interface{}) (*models.User, error) {
	u, err := d.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	if u.Role != models.RoleOwner {
		return nil, ErrNotFound
	}

	if err := d.db.Model(u).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("failed to update owner: %w", err)
	}
	return d.GetUserByID(id)
}
