package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"rentals/server/internal/auth"
	"rentals/server/internal/models"
)

const (
	claimsKey = "claims"
	userKey   = "user"
)

// AuthRequired rejects requests without a valid bearer token. The token's user
// must still exist and not have been rejected.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.fail(c, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		claims, err := h.tokens.Parse(token)
		if err != nil {
			h.fail(c, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}

		user, err := h.db.GetUserByID(claims.UserID())
		if err != nil {
			h.fail(c, http.StatusUnauthorized, "Unknown user", nil)
			return
		}
		if user.Status == models.UserStatusRejected {
			h.fail(c, http.StatusForbidden, "Account has been rejected", nil)
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole must run after AuthRequired
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := currentClaims(c)
		if claims == nil || !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*models.User); ok {
			return user, true
		}
	}
	h.fail(c, http.StatusUnauthorized, "Unauthorized", nil)
	return nil, false
}
