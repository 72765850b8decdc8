package models

import "time"

// PlaceholderImage is shown for listings that have no images yet
const PlaceholderImage = "/placeholder.svg"

type PropertyType string

const (
	PropertyTypeApartment PropertyType = "apartment"
	PropertyTypeHouse     PropertyType = "house"
	PropertyTypeRoom      PropertyType = "room"
	PropertyTypeStudio    PropertyType = "studio"
)

// IsValid reports whether t is one of the known property types
func (t PropertyType) IsValid() bool {
	switch t {
	case PropertyTypeApartment, PropertyTypeHouse, PropertyTypeRoom, PropertyTypeStudio:
		return true
	}
	return false
}

type Property struct {
	ID                 string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title              string       `gorm:"not null" json:"title"`
	Description        string       `json:"description"`
	Price              int          `gorm:"not null;index" json:"price"`
	Location           string       `gorm:"index" json:"location"`
	PropertyType       PropertyType `gorm:"type:varchar(16);index" json:"property_type"`
	Bedrooms           int          `json:"bedrooms"`
	Bathrooms          int          `json:"bathrooms"`
	Area               int          `json:"area"`
	Amenities          []string     `gorm:"serializer:json" json:"amenities"`
	Images             []string     `gorm:"serializer:json" json:"images"`
	OwnerID            string       `gorm:"type:varchar(36);index" json:"owner_id"`
	OwnerName          string       `json:"owner_name"`
	OwnerEmail         string       `json:"owner_email"`
	OwnerPhone         string       `json:"owner_phone"`
	IsAvailable        bool         `json:"is_available"`
	Latitude           *float64     `json:"latitude"`
	Longitude          *float64     `json:"longitude"`
	GeocodingAttempted bool         `json:"-"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// CoverImage returns the first image of the listing or the placeholder
func (p *Property) CoverImage() string {
	if len(p.Images) == 0 {
		return PlaceholderImage
	}
	return p.Images[0]
}

// HasCoordinates reports whether the listing has been geocoded
func (p *Property) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// PropertyStats is the admin dashboard summary
type PropertyStats struct {
	TotalUsers        int64            `json:"total_users"`
	UsersByRole       map[string]int64 `json:"users_by_role"`
	PendingOwners     int64            `json:"pending_owners"`
	TotalProperties   int64            `json:"total_properties"`
	AvailableListings int64            `json:"available_listings"`
	BookingsByStatus  map[string]int64 `json:"bookings_by_status"`
	AveragePrice      float64          `json:"average_price"`
	TotalMessages     int64            `json:"total_messages"`
}
