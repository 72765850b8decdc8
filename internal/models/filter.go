package models

// FilterSpec selects listings. Every field is optional; an inactive field imposes no
// constraint and active fields are combined with AND.
type FilterSpec struct {
	Location     string       `json:"location,omitempty"`
	PropertyType PropertyType `json:"property_type,omitempty"`
	MinPrice     *int         `json:"min_price,omitempty"`
	MaxPrice     *int         `json:"max_price,omitempty"`
	MinBedrooms  *int         `json:"min_bedrooms,omitempty"`
	Amenities    []string     `json:"amenities,omitempty"`
	Near         *GeoRadius   `json:"near,omitempty"`
}

// GeoRadius restricts listings to a circle around a point
type GeoRadius struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km"`
}

// IsEmpty reports whether no constraint is active
func (f *FilterSpec) IsEmpty() bool {
	if f == nil {
		return true
	}
	return f.Location == "" &&
		f.PropertyType == "" &&
		f.MinPrice == nil &&
		f.MaxPrice == nil &&
		f.MinBedrooms == nil &&
		len(f.Amenities) == 0 &&
		f.Near == nil
}
