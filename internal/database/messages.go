package database

import (
	"fmt"

	"github.com/google/uuid"

	"rentals/server/internal/models"
)

func (d *Database) CreateMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := d.db.Create(m).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetThread returns the messages exchanged between two users, oldest first
func (d *Database) GetThread(userID, counterpartID string) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, counterpartID, counterpartID, userID).
		Order("created_at, rowid").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return messages, nil
}

// GetConversations returns one entry per counterpart holding the latest message, newest first
func (d *Database) GetConversations(userID string) ([]models.Conversation, error) {
	var messages []models.Message
	err := d.db.
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC, rowid DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	seen := make(map[string]bool)
	conversations := make([]models.Conversation, 0)
	for _, m := range messages {
		counterpart := m.ReceiverID
		if counterpart == userID {
			counterpart = m.SenderID
		}
		if seen[counterpart] {
			continue
		}
		seen[counterpart] = true
		conversations = append(conversations, models.Conversation{
			CounterpartID: counterpart,
			LastMessage:   m,
		})
	}
	return conversations, nil
}
