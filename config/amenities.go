package config

import "slices"

// Amenities is the fixed vocabulary listings may draw their amenity tags from
var Amenities = []string{
	"Parking",
	"WiFi",
	"Air Conditioning",
	"Gym",
	"Pool",
	"Pet Friendly",
	"Security",
	"Laundry",
	"Balcony",
	"Garden",
	"Kitchen",
}

// GetAmenityNames returns a copy of the amenity vocabulary
func GetAmenityNames() []string {
	return slices.Clone(Amenities)
}

// IsKnownAmenity reports whether name is part of the vocabulary
func IsKnownAmenity(name string) bool {
	return slices.Contains(Amenities, name)
}

// UnknownAmenities returns the entries of names that are not in the vocabulary
func UnknownAmenities(names []string) []string {
	var unknown []string
	for _, name := range names {
		if !IsKnownAmenity(name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
