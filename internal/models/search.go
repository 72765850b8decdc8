package models

import "time"

// SavedSearch stores a renter's criteria for new-listing alerts
type SavedSearch struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string     `gorm:"type:varchar(36);index" json:"user_id"`
	Name           string     `json:"name"`
	Criteria       FilterSpec `gorm:"serializer:json" json:"criteria"`
	Expression     string     `json:"expression,omitempty"`
	TelegramChatID string     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
