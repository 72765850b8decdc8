package models

import (
	"errors"
	"time"
)

var ErrInvalidTransition = errors.New("invalid booking status transition")

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingRejected BookingStatus = "rejected"
)

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingPending, BookingApproved, BookingRejected:
		return true
	}
	return false
}

type Booking struct {
	ID          string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PropertyID  string        `gorm:"type:varchar(36);index" json:"property_id"`
	RenterID    string        `gorm:"type:varchar(36);index" json:"renter_id"`
	RenterName  string        `json:"renter_name"`
	RenterEmail string        `json:"renter_email"`
	RenterPhone string        `json:"renter_phone"`
	Message     string        `json:"message"`
	Status      BookingStatus `gorm:"type:varchar(16);index" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Transition moves a pending booking to its final status
func (b *Booking) Transition(to BookingStatus) error {
	if b.Status != BookingPending {
		return ErrInvalidTransition
	}
	if to != BookingApproved && to != BookingRejected {
		return ErrInvalidTransition
	}
	b.Status = to
	return nil
}
