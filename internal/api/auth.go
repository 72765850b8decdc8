package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rentals/server/internal/auth"
	"rentals/server/internal/database"
	"rentals/server/internal/models"
)

type RegisterRequest struct {
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required"`
	Name     string      `json:"name" binding:"required"`
	Phone    string      `json:"phone"`
	Role     models.Role `json:"role" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ProfileRequest updates the caller's profile; nil fields are left unchanged
type ProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Admin accounts are provisioned, never self-registered
	if req.Role != models.RoleRenter && req.Role != models.RoleOwner {
		h.fail(c, http.StatusBadRequest, "Role must be renter or owner", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) || errors.Is(err, auth.ErrLongPassword) {
			h.fail(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		h.fail(c, http.StatusInternalServerError, "Failed to register", err)
		return
	}

	user := &models.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Phone:        req.Phone,
		Role:         req.Role,
		IsApproved:   req.Role != models.RoleOwner,
		PasswordHash: hash,
	}
	if err := h.db.CreateUser(user); err != nil {
		h.failStore(c, err, "register")
		return
	}

	h.logger.WithField("user_id", user.ID).WithField("role", user.Role).Info("User registered")
	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.fail(c, http.StatusUnauthorized, "Invalid email or password", nil)
			return
		}
		h.fail(c, http.StatusInternalServerError, "Failed to log in", err)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.fail(c, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if user.Status == models.UserStatusRejected {
		h.fail(c, http.StatusForbidden, "Account has been rejected", nil)
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *Handler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}
	c.JSON(status, TokenResponse{Token: token, ExpiresAt: expires.Unix(), User: user})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe edits the caller's name, email and phone
func (h *Handler) UpdateMe(c *gin.Context) {
	current, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user := *current
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		if user.Name == "" {
			h.fail(c, http.StatusBadRequest, "Name cannot be empty", nil)
			return
		}
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}

	if err := h.db.UpdateUser(&user); err != nil {
		h.failStore(c, err, "update profile")
		return
	}

	h.logger.WithField("user_id", user.ID).Info("Profile updated")
	c.JSON(http.StatusOK, &user)
}
