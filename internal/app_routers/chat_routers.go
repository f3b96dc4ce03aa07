package approuters

import (
	"github.com/gin-gonic/gin"

	"messaging-service/internal/configuration"
	"messaging-service/internal/middleware"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	api := router.Group("/api/chat")
	api.Use(middleware.RequestID())
	api.Use(middleware.AuthMiddleware(container.Config.Server.JWTSecret))

	conversations := api.Group("/conversations")
	{
		conversations.GET("", container.ConversationHandler.List)
		conversations.POST("/direct", container.ConversationHandler.ResolveDirect)
		conversations.POST("/group", container.ConversationHandler.CreateGroup)
		conversations.GET("/:conversationId", container.ConversationHandler.Get)
		conversations.POST("/:conversationId/participants", container.ConversationHandler.AddParticipant)
		conversations.DELETE("/:conversationId/participants/:userId", container.ConversationHandler.RemoveParticipant)
		conversations.PATCH("/:conversationId/name", container.ConversationHandler.Rename)
		conversations.POST("/:conversationId/archive", container.ConversationHandler.Archive)
		conversations.POST("/:conversationId/unarchive", container.ConversationHandler.Unarchive)
		conversations.POST("/:conversationId/pins/:messageId", container.ConversationHandler.Pin)
		conversations.DELETE("/:conversationId/pins/:messageId", container.ConversationHandler.Unpin)

		conversations.GET("/:conversationId/messages", container.MessageHandler.List)
		conversations.GET("/:conversationId/unread", container.MessageHandler.UnreadCount)
	}

	messages := api.Group("/messages")
	{
		messages.POST("", container.MessageHandler.Send)
		messages.POST("/read", container.MessageHandler.MarkRead)
		messages.POST("/:messageId/reactions", container.MessageHandler.ToggleReaction)
		messages.PATCH("/:messageId", container.MessageHandler.Edit)
		messages.DELETE("/:messageId", container.MessageHandler.Delete)
	}
}
