package models

import "time"

type Message struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID   string    `gorm:"type:varchar(36);index" json:"sender_id"`
	ReceiverID string    `gorm:"type:varchar(36);index" json:"receiver_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `gorm:"not null" json:"content"`
	PropertyID *string   `gorm:"type:varchar(36)" json:"property_id,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Conversation is the latest message exchanged with one counterpart
type Conversation struct {
	CounterpartID string  `json:"counterpart_id"`
	LastMessage   Message `json:"last_message"`
}
