package models

import "time"

type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleRenter, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

const (
	UserStatusActive   = "active"
	UserStatusRejected = "rejected"
)

type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Role         Role      `gorm:"type:varchar(16);index" json:"role"`
	IsApproved   bool      `json:"is_approved"`
	Status       string    `gorm:"type:varchar(16);default:active" json:"status"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanPublish reports whether the user may create listings
func (u *User) CanPublish() bool {
	return u.Role == RoleOwner && u.IsApproved && u.Status == UserStatusActive
}
