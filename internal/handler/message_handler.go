package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messaging-service/internal/middleware"
	"messaging-service/internal/model"
	"messaging-service/internal/service"
)

// MessageHandler exposes the message store over HTTP.
type MessageHandler struct {
	messages service.MessageService
	logger   *zap.Logger
}

func NewMessageHandler(messages service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		logger:   logger,
	}
}

// List handles GET /conversations/:conversationId/messages?cursor=&limit=.
func (h *MessageHandler) List(c *gin.Context) {
	userID := middleware.MustUserID(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	page, err := h.messages.List(c.Request.Context(), c.Param("conversationId"), userID, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// Send handles POST /messages.
func (h *MessageHandler) Send(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req struct {
		ConversationID string             `json:"conversationId" binding:"required"`
		Type           string             `json:"type"`
		Content        string             `json:"content"`
		Attachments    []model.Attachment `json:"attachments"`
		ReplyTo        string             `json:"replyTo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.messages.Send(c.Request.Context(), service.SendInput{
		ConversationID: req.ConversationID,
		Sender:         userID,
		Type:           req.Type,
		Content:        req.Content,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// MarkRead handles POST /messages/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req struct {
		ConversationID string `json:"conversationId" binding:"required"`
		UpToMessageID  string `json:"upToMessageId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), req.ConversationID, userID, req.UpToMessageID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ToggleReaction handles POST /messages/:messageId/reactions.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.messages.ToggleReaction(c.Request.Context(), c.Param("messageId"), userID, req.Emoji)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Edit handles PATCH /messages/:messageId.
func (h *MessageHandler) Edit(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.messages.Edit(c.Request.Context(), c.Param("messageId"), userID, req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// Delete handles DELETE /messages/:messageId.
func (h *MessageHandler) Delete(c *gin.Context) {
	userID := middleware.MustUserID(c)

	if err := h.messages.SoftDelete(c.Request.Context(), c.Param("messageId"), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UnreadCount handles GET /conversations/:conversationId/unread.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID := middleware.MustUserID(c)

	count, err := h.messages.UnreadCount(c.Request.Context(), c.Param("conversationId"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}
