package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notistore/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("", handler.Create)
		group.POST("/read-all", handler.MarkAllRead)

		group.GET("/:id", handler.Get)
		group.PATCH("/:id", handler.Update)
		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/unread", handler.MarkUnread)
		group.POST("/:id/soft-delete", handler.SoftDelete)
		group.DELETE("/:id", handler.Delete)
	}
}
