package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rentals/server/internal/events"
	"rentals/server/internal/models"
)

type BookingRequest struct {
	PropertyID string `json:"property_id" binding:"required"`
	Message    string `json:"message"`
}

type BookingStatusRequest struct {
	Status models.BookingStatus `json:"status" binding:"required"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	renter, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.db.GetProperty(req.PropertyID)
	if err != nil {
		h.failStore(c, err, "get property")
		return
	}
	if !p.IsAvailable {
		h.fail(c, http.StatusConflict, "Property is not available", nil)
		return
	}

	b := &models.Booking{
		PropertyID:  p.ID,
		RenterID:    renter.ID,
		RenterName:  renter.Name,
		RenterEmail: renter.Email,
		RenterPhone: renter.Phone,
		Message:     strings.TrimSpace(req.Message),
	}
	if err := h.db.CreateBooking(b); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to create booking", err)
		return
	}

	h.publish(c, events.BookingCreated, gin.H{"booking": b, "owner_id": p.OwnerID})
	c.JSON(http.StatusCreated, b)
}

// GetBookings lists the caller's inquiries: sent ones for renters, received ones for owners
func (h *Handler) GetBookings(c *gin.Context) {
	claims := currentClaims(c)

	status := models.BookingStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		h.fail(c, http.StatusBadRequest, "Invalid status", nil)
		return
	}

	var (
		bookings []models.Booking
		err      error
	)
	if claims.Role == models.RoleOwner {
		bookings, err = h.db.GetBookingsForOwner(claims.UserID(), status)
	} else {
		bookings, err = h.db.GetBookingsByRenter(claims.UserID(), status)
	}
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get bookings", err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	claims := currentClaims(c)

	var req BookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Status.IsValid() {
		h.fail(c, http.StatusBadRequest, "Invalid status", nil)
		return
	}

	b, err := h.db.UpdateBookingStatus(c.Param("id"), claims.UserID(), req.Status)
	if err != nil {
		h.failStore(c, err, "update booking")
		return
	}

	h.publish(c, events.BookingStatusChange, b)
	c.JSON(http.StatusOK, b)
}
