package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rentals/server/internal/auth"
	"rentals/server/internal/database"
	"rentals/server/internal/models"
)

// User is a fixture account; Password is hashed on load
type User struct {
	models.User
	Password string `json:"password"`
}

// Fixtures uses the models' JSON field names as YAML keys
type Fixtures struct {
	Users      []User             `json:"users"`
	Properties []*models.Property `json:"properties"`
	Bookings   []models.Booking   `json:"bookings"`
	Messages   []models.Message   `json:"messages"`
}

// Load reads a YAML fixture file
func Load(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	// Round-trip through JSON so the models need no yaml tags
	converted, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert seed file: %w", err)
	}

	var f Fixtures
	if err := json.Unmarshal(converted, &f); err != nil {
		return nil, fmt.Errorf("invalid seed data: %w", err)
	}
	return &f, nil
}

// Apply inserts the fixtures in one transaction. Rows that already exist are
// left alone, except listings which are refreshed from the file.
func Apply(db *gorm.DB, f *Fixtures, logger *logrus.Logger) error {
	users := make([]models.User, 0, len(f.Users))
	for _, u := range f.Users {
		user := u.User
		user.Email = strings.ToLower(user.Email)
		if user.Status == "" {
			user.Status = models.UserStatusActive
		}
		if u.Password != "" {
			hash, err := auth.HashPassword(u.Password)
			if err != nil {
				return fmt.Errorf("seed user %s: %w", user.Email, err)
			}
			user.PasswordHash = hash
		}
		users = append(users, user)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if len(users) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
				return fmt.Errorf("failed to seed users: %w", err)
			}
		}
		if err := database.UpsertProperties(tx, f.Properties); err != nil {
			return err
		}
		if len(f.Bookings) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&f.Bookings).Error; err != nil {
				return fmt.Errorf("failed to seed bookings: %w", err)
			}
		}
		if len(f.Messages) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&f.Messages).Error; err != nil {
				return fmt.Errorf("failed to seed messages: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"users":      len(f.Users),
			"properties": len(f.Properties),
			"bookings":   len(f.Bookings),
			"messages":   len(f.Messages),
		}).Info("Seed data applied")
	}
	return nil
}

// LoadAndApply is a convenience for startup
func LoadAndApply(path string, db *gorm.DB, logger *logrus.Logger) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(db, f, logger)
}
