package notification

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the notification endpoints. canSend guards the producer endpoint.
func RegisterRoutes(protected *gin.RouterGroup, handler *Handler, canSend gin.HandlerFunc) {
	g := protected.Group("/notifications")
	{
		g.POST("", canSend, handler.Send)
		g.GET("/mine", handler.Mine)
		g.GET("/unread-count", handler.UnreadCount)
		g.GET("/:id", handler.Get)
		g.PATCH("/mark-read", handler.MarkRead)
		g.PATCH("/mark-all-read", handler.MarkAllRead)
	}
}
