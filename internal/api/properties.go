package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rentals/server/config"
	"rentals/server/internal/cache"
	"rentals/server/internal/events"
	"rentals/server/internal/filter"
	"rentals/server/internal/models"
	"rentals/server/internal/queue"
	"rentals/server/internal/storage"
)

const maxImageSize = 10 << 20

// PropertyQuery is the query string of the listing search
type PropertyQuery struct {
	Location  string   `form:"location"`
	Type      string   `form:"type"`
	MinPrice  *int     `form:"min_price" binding:"omitempty,min=0"`
	MaxPrice  *int     `form:"max_price" binding:"omitempty,min=0"`
	Bedrooms  *int     `form:"bedrooms" binding:"omitempty,min=0"`
	Amenities []string `form:"amenities"`
	NearLat   *float64 `form:"near_lat" binding:"omitempty,min=-90,max=90"`
	NearLng   *float64 `form:"near_lng" binding:"omitempty,min=-180,max=180"`
	RadiusKm  *float64 `form:"radius_km" binding:"omitempty,gt=0"`
	Expr      string   `form:"expr"`
}

// FilterSpec converts the query into evaluator input
func (q *PropertyQuery) FilterSpec() (models.FilterSpec, error) {
	spec := models.FilterSpec{
		Location:    strings.TrimSpace(q.Location),
		MinPrice:    q.MinPrice,
		MaxPrice:    q.MaxPrice,
		MinBedrooms: q.Bedrooms,
		Amenities:   splitList(q.Amenities),
	}

	if q.Type != "" {
		t := models.PropertyType(q.Type)
		if !t.IsValid() {
			return spec, fmt.Errorf("unknown property type %q", q.Type)
		}
		spec.PropertyType = t
	}

	switch {
	case q.NearLat == nil && q.NearLng == nil && q.RadiusKm == nil:
	case q.NearLat != nil && q.NearLng != nil && q.RadiusKm != nil:
		spec.Near = &models.GeoRadius{Latitude: *q.NearLat, Longitude: *q.NearLng, RadiusKm: *q.RadiusKm}
	default:
		return spec, errors.New("near_lat, near_lng and radius_km must be given together")
	}

	return spec, nil
}

// splitList accepts both repeated parameters and comma separated values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// PropertyRequest is the body of create and update; nil fields are left unchanged on update
type PropertyRequest struct {
	Title        *string              `json:"title"`
	Description  *string              `json:"description"`
	Price        *int                 `json:"price"`
	Location     *string              `json:"location"`
	PropertyType *models.PropertyType `json:"property_type"`
	Bedrooms     *int                 `json:"bedrooms"`
	Bathrooms    *int                 `json:"bathrooms"`
	Area         *int                 `json:"area"`
	Amenities    []string             `json:"amenities"`
	Images       []string             `json:"images"`
	IsAvailable  *bool                `json:"is_available"`
}

func (r *PropertyRequest) applyTo(p *models.Property) {
	if r.Title != nil {
		p.Title = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Location != nil {
		if loc := strings.TrimSpace(*r.Location); loc != p.Location {
			p.Location = loc
			p.Latitude, p.Longitude = nil, nil
			p.GeocodingAttempted = false
		}
	}
	if r.PropertyType != nil {
		p.PropertyType = *r.PropertyType
	}
	if r.Bedrooms != nil {
		p.Bedrooms = *r.Bedrooms
	}
	if r.Bathrooms != nil {
		p.Bathrooms = *r.Bathrooms
	}
	if r.Area != nil {
		p.Area = *r.Area
	}
	if r.Amenities != nil {
		p.Amenities = r.Amenities
	}
	if r.Images != nil {
		p.Images = r.Images
	}
	if r.IsAvailable != nil {
		p.IsAvailable = *r.IsAvailable
	}
}

func validateProperty(p *models.Property) error {
	switch {
	case p.Title == "":
		return errors.New("title is required")
	case p.Price <= 0:
		return errors.New("price must be positive")
	case p.Area <= 0:
		return errors.New("area must be positive")
	case p.Bedrooms < 0 || p.Bathrooms < 0:
		return errors.New("bedrooms and bathrooms cannot be negative")
	case !p.PropertyType.IsValid():
		return fmt.Errorf("unknown property type %q", p.PropertyType)
	}
	if unknown := config.UnknownAmenities(p.Amenities); len(unknown) > 0 {
		return fmt.Errorf("unknown amenities: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// GetProperties lists the listings matching the query string
func (h *Handler) GetProperties(c *gin.Context) {
	var q PropertyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	spec, err := q.FilterSpec()
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if q.Expr != "" {
		if _, err := h.compiler.Compile(q.Expr); err != nil {
			h.fail(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	ctx := c.Request.Context()
	key := cache.Key(c.Request.URL.Query())
	gen := h.listingGeneration()
	if data, ok := h.cache.Get(ctx, key); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
		return
	}

	properties, err := h.db.GetAllProperties()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get properties", err)
		return
	}

	result := filter.Apply(properties, spec)
	result, err = h.compiler.ApplyExpression(result, q.Expr)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to encode properties", err)
		return
	}
	h.cacheListings(ctx, key, data, gen)

	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *Handler) GetProperty(c *gin.Context) {
	p, err := h.db.GetProperty(c.Param("id"))
	if err != nil {
		h.failStore(c, err, "get property")
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetMyProperties lists the caller's own listings
func (h *Handler) GetMyProperties(c *gin.Context) {
	claims := currentClaims(c)
	properties, err := h.db.GetPropertiesByOwner(claims.UserID())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get properties", err)
		return
	}
	c.JSON(http.StatusOK, properties)
}

func (h *Handler) CreateProperty(c *gin.Context) {
	owner, ok := h.currentUser(c)
	if !ok {
		return
	}
	if !owner.CanPublish() {
		h.fail(c, http.StatusForbidden, "Owner account is awaiting approval", nil)
		return
	}

	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := &models.Property{
		Amenities:   []string{},
		Images:      []string{},
		IsAvailable: true,
	}
	req.applyTo(p)
	// Ownership always comes from the caller
	p.OwnerID = owner.ID
	p.OwnerName = owner.Name
	p.OwnerEmail = owner.Email
	p.OwnerPhone = owner.Phone

	if err := validateProperty(p); err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.db.CreateProperty(p); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to create property", err)
		return
	}

	h.invalidateListings(c)
	h.publish(c, events.PropertyCreated, p)
	h.enqueue(p)

	c.JSON(http.StatusCreated, p)
}

// enqueue hands a copy of the listing to the alert pipeline
func (h *Handler) enqueue(p *models.Property) {
	if h.queue == nil {
		return
	}
	listing := *p
	if err := h.queue.Push([]*models.Property{&listing}); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			h.logger.WithError(err).WithField("property_id", p.ID).Warn("Listing not queued for alerts")
			return
		}
		h.logger.WithError(err).Error("Failed to queue listing")
	}
}

// ownedProperty loads a listing the caller is allowed to modify
func (h *Handler) ownedProperty(c *gin.Context, allowAdmin bool) (*models.Property, bool) {
	claims := currentClaims(c)
	p, err := h.db.GetProperty(c.Param("id"))
	if err != nil {
		h.failStore(c, err, "get property")
		return nil, false
	}
	if p.OwnerID != claims.UserID() && !(allowAdmin && claims.Role == models.RoleAdmin) {
		h.fail(c, http.StatusForbidden, "Not the owner of this property", nil)
		return nil, false
	}
	return p, true
}

func (h *Handler) UpdateProperty(c *gin.Context) {
	p, ok := h.ownedProperty(c, false)
	if !ok {
		return
	}

	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.applyTo(p)
	if err := validateProperty(p); err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	p.UpdatedAt = time.Now()
	if err := h.db.UpdateProperty(p); err != nil {
		h.failStore(c, err, "update property")
		return
	}

	h.invalidateListings(c)
	h.publish(c, events.PropertyUpdated, p)

	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProperty(c *gin.Context) {
	p, ok := h.ownedProperty(c, true)
	if !ok {
		return
	}

	if err := h.db.DeleteProperty(p.ID); err != nil {
		h.failStore(c, err, "delete property")
		return
	}

	h.invalidateListings(c)
	h.deleteImages(c.Request.Context(), p.ID, p.Images)
	h.publish(c, events.PropertyDeleted, gin.H{"id": p.ID, "owner_id": p.OwnerID})

	c.Status(http.StatusNoContent)
}

// UploadImage stores a multipart "image" file and appends its URL to the listing
func (h *Handler) UploadImage(c *gin.Context) {
	p, ok := h.ownedProperty(c, false)
	if !ok {
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Missing image file", err)
		return
	}
	if file.Size > maxImageSize {
		h.fail(c, http.StatusRequestEntityTooLarge, "Image is too large", nil)
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		h.fail(c, http.StatusBadRequest, "File must be an image", nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read image", err)
		return
	}
	defer src.Close()

	url, err := h.images.Upload(c.Request.Context(), p.ID, src, file.Filename, contentType, file.Size)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			h.fail(c, http.StatusServiceUnavailable, "Image storage is not configured", nil)
			return
		}
		h.fail(c, http.StatusBadGateway, "Failed to store image", err)
		return
	}

	p.Images = append(p.Images, url)
	if err := h.db.UpdateProperty(p); err != nil {
		h.deleteImages(c.Request.Context(), p.ID, []string{url})
		h.failStore(c, err, "update property")
		return
	}

	h.invalidateListings(c)
	h.publish(c, events.PropertyUpdated, p)

	c.JSON(http.StatusCreated, p)
}
