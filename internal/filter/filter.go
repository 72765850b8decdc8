// Package filter evaluates listing searches against a collection of properties.
package filter

import (
	"slices"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"rentals/server/internal/models"
)

type predicate func(p *models.Property) bool

// Apply returns the properties that satisfy every active constraint of spec, in their
// original order. The input slice is left untouched and the result is a fresh slice.
func Apply(properties []models.Property, spec models.FilterSpec) []models.Property {
	preds := predicates(spec)

	result := make([]models.Property, 0, len(properties))
	for i := range properties {
		if matchAll(&properties[i], preds) {
			result = append(result, properties[i])
		}
	}
	return result
}

// Matches reports whether a single property satisfies spec
func Matches(p *models.Property, spec models.FilterSpec) bool {
	return matchAll(p, predicates(spec))
}

func matchAll(p *models.Property, preds []predicate) bool {
	for _, pred := range preds {
		if !pred(p) {
			return false
		}
	}
	return true
}

// predicates builds one check per active field, in evaluation order
func predicates(spec models.FilterSpec) []predicate {
	var preds []predicate

	if spec.Location != "" {
		needle := strings.ToLower(spec.Location)
		preds = append(preds, func(p *models.Property) bool {
			return strings.Contains(strings.ToLower(p.Location), needle)
		})
	}

	if spec.PropertyType != "" {
		want := spec.PropertyType
		preds = append(preds, func(p *models.Property) bool {
			return p.PropertyType == want
		})
	}

	if spec.MinPrice != nil {
		minPrice := *spec.MinPrice
		preds = append(preds, func(p *models.Property) bool {
			return p.Price >= minPrice
		})
	}

	if spec.MaxPrice != nil {
		maxPrice := *spec.MaxPrice
		preds = append(preds, func(p *models.Property) bool {
			return p.Price <= maxPrice
		})
	}

	if spec.MinBedrooms != nil {
		minBedrooms := *spec.MinBedrooms
		preds = append(preds, func(p *models.Property) bool {
			return p.Bedrooms >= minBedrooms
		})
	}

	if len(spec.Amenities) > 0 {
		required := slices.Clone(spec.Amenities)
		preds = append(preds, func(p *models.Property) bool {
			for _, amenity := range required {
				if !slices.Contains(p.Amenities, amenity) {
					return false
				}
			}
			return true
		})
	}

	if spec.Near != nil {
		center := orb.Point{spec.Near.Longitude, spec.Near.Latitude}
		maxMeters := spec.Near.RadiusKm * 1000
		preds = append(preds, func(p *models.Property) bool {
			// Listings that were never geocoded cannot satisfy a radius search
			if !p.HasCoordinates() {
				return false
			}
			point := orb.Point{*p.Longitude, *p.Latitude}
			return geo.DistanceHaversine(center, point) <= maxMeters
		})
	}

	return preds
}
