package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rentals/server/internal/models"
)

type SavedSearchRequest struct {
	Name           string            `json:"name" binding:"required"`
	Criteria       models.FilterSpec `json:"criteria"`
	Expression     string            `json:"expression"`
	TelegramChatID string            `json:"telegram_chat_id"`
}

var errInvalidNear = errors.New("near needs a valid latitude and longitude and a positive radius_km")

func (h *Handler) validateSearch(req *SavedSearchRequest) error {
	spec := req.Criteria
	if spec.PropertyType != "" && !spec.PropertyType.IsValid() {
		return fmt.Errorf("unknown property type %q", spec.PropertyType)
	}
	for _, bound := range []*int{spec.MinPrice, spec.MaxPrice, spec.MinBedrooms} {
		if bound != nil && *bound < 0 {
			return errors.New("bounds cannot be negative")
		}
	}
	if n := spec.Near; n != nil {
		if n.RadiusKm <= 0 || n.Latitude < -90 || n.Latitude > 90 || n.Longitude < -180 || n.Longitude > 180 {
			return errInvalidNear
		}
	}
	if req.Expression != "" {
		if _, err := h.compiler.Compile(req.Expression); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) GetSavedSearches(c *gin.Context) {
	searches, err := h.db.GetSavedSearchesByUser(currentClaims(c).UserID())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get saved searches", err)
		return
	}
	c.JSON(http.StatusOK, searches)
}

func (h *Handler) CreateSavedSearch(c *gin.Context) {
	var req SavedSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validateSearch(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	s := &models.SavedSearch{
		UserID:         currentClaims(c).UserID(),
		Name:           strings.TrimSpace(req.Name),
		Criteria:       req.Criteria,
		Expression:     req.Expression,
		TelegramChatID: req.TelegramChatID,
	}
	if err := h.db.CreateSavedSearch(s); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to create saved search", err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateSavedSearch(c *gin.Context) {
	var req SavedSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validateSearch(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	s := &models.SavedSearch{
		ID:             c.Param("id"),
		UserID:         currentClaims(c).UserID(),
		Name:           strings.TrimSpace(req.Name),
		Criteria:       req.Criteria,
		Expression:     req.Expression,
		TelegramChatID: req.TelegramChatID,
	}
	if err := h.db.UpdateSavedSearch(s); err != nil {
		h.failStore(c, err, "update saved search")
		return
	}

	updated, err := h.db.GetSavedSearch(s.ID)
	if err != nil {
		h.failStore(c, err, "get saved search")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteSavedSearch(c *gin.Context) {
	if err := h.db.DeleteSavedSearch(c.Param("id"), currentClaims(c).UserID()); err != nil {
		h.failStore(c, err, "delete saved search")
		return
	}
	c.Status(http.StatusNoContent)
}
