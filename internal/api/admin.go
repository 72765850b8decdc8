package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rentals/server/internal/events"
	"rentals/server/internal/models"
)

func (h *Handler) GetUsers(c *gin.Context) {
	role := models.Role(c.Query("role"))
	if role != "" && !role.IsValid() {
		h.fail(c, http.StatusBadRequest, "Invalid role", nil)
		return
	}

	users, err := h.db.GetUsers(role)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) GetPendingOwners(c *gin.Context) {
	owners, err := h.db.GetPendingOwners()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get pending owners", err)
		return
	}
	c.JSON(http.StatusOK, owners)
}

func (h *Handler) ApproveOwner(c *gin.Context) {
	owner, err := h.db.ApproveOwner(c.Param("id"))
	if err != nil {
		h.failStore(c, err, "approve owner")
		return
	}

	h.logger.WithField("owner_id", owner.ID).Info("Owner approved")
	h.publish(c, events.OwnerApproved, gin.H{"owner_id": owner.ID})
	c.JSON(http.StatusOK, owner)
}

func (h *Handler) RejectOwner(c *gin.Context) {
	owner, err := h.db.RejectOwner(c.Param("id"))
	if err != nil {
		h.failStore(c, err, "reject owner")
		return
	}

	h.logger.WithField("owner_id", owner.ID).Info("Owner rejected")
	h.publish(c, events.OwnerRejected, gin.H{"owner_id": owner.ID})
	c.JSON(http.StatusOK, owner)
}

func (h *Handler) GetPropertyStats(c *gin.Context) {
	stats, err := h.db.GetPropertyStats()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get property stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
