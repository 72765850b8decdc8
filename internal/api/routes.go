package api

import (
	"github.com/gin-gonic/gin"

	"rentals/server/internal/models"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.Health)

	api := router.Group("/api")
	{
		api.POST("/auth/register", handler.Register)
		api.POST("/auth/login", handler.Login)

		api.GET("/amenities", handler.GetAmenities)
		api.GET("/properties", handler.GetProperties)
		api.GET("/properties/:id", handler.GetProperty)
	}

	authed := api.Group("", handler.AuthRequired())
	{
		authed.GET("/me", handler.Me)
		authed.PUT("/me", handler.UpdateMe)

		owner := RequireRole(models.RoleOwner)
		authed.GET("/me/properties", owner, handler.GetMyProperties)
		authed.POST("/properties", owner, handler.CreateProperty)
		authed.PUT("/properties/:id", owner, handler.UpdateProperty)
		authed.POST("/properties/:id/images", owner, handler.UploadImage)
		authed.DELETE("/properties/:id", RequireRole(models.RoleOwner, models.RoleAdmin), handler.DeleteProperty)

		authed.POST("/bookings", RequireRole(models.RoleRenter), handler.CreateBooking)
		authed.GET("/bookings", RequireRole(models.RoleRenter, models.RoleOwner), handler.GetBookings)
		authed.PATCH("/bookings/:id", owner, handler.UpdateBookingStatus)

		authed.POST("/messages", handler.SendMessage)
		authed.GET("/messages", handler.GetConversations)
		authed.GET("/messages/:userId", handler.GetThread)

		authed.GET("/searches", handler.GetSavedSearches)
		authed.POST("/searches", handler.CreateSavedSearch)
		authed.PUT("/searches/:id", handler.UpdateSavedSearch)
		authed.DELETE("/searches/:id", handler.DeleteSavedSearch)
	}

	admin := authed.Group("/admin", RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", handler.GetUsers)
		admin.GET("/owners/pending", handler.GetPendingOwners)
		admin.POST("/owners/:id/approve", handler.ApproveOwner)
		admin.POST("/owners/:id/reject", handler.RejectOwner)
		admin.GET("/stats", handler.GetPropertyStats)
		admin.POST("/update-coordinates", handler.UpdateCoordinates)
	}
}
