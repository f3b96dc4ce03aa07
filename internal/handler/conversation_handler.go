package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messaging-service/internal/identity"
	"messaging-service/internal/middleware"
	"messaging-service/internal/model"
	"messaging-service/internal/service"
)

// ConversationHandler exposes the conversation directory over HTTP.
type ConversationHandler struct {
	conversations service.ConversationService
	users         identity.Client
	logger        *zap.Logger
}

func NewConversationHandler(conversations service.ConversationService, users identity.Client, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		users:         users,
		logger:        logger,
	}
}

// ResolveDirect handles POST /conversations/direct.
func (h *ConversationHandler) ResolveDirect(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, err := h.conversations.ResolveOrCreateDirect(c.Request.Context(), userID, req.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// List handles GET /conversations, sorted by last activity, enriched with
// display fields from the identity service.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := middleware.MustUserID(c)

	conversations, err := h.conversations.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"users":         h.lookupUsers(c, conversations),
	})
}

// Get handles GET /conversations/:conversationId.
func (h *ConversationHandler) Get(c *gin.Context) {
	userID := middleware.MustUserID(c)

	conversation, err := h.conversations.Get(c.Request.Context(), c.Param("conversationId"), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// CreateGroup handles POST /conversations/group.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req struct {
		Name         string          `json:"name"`
		Participants []string        `json:"participants"`
		Settings     *model.Settings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, err := h.conversations.CreateGroup(c.Request.Context(), userID, req.Participants, req.Name, req.Settings)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conversation})
}

// AddParticipant handles POST /conversations/:conversationId/participants.
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	actorID := middleware.MustUserID(c)

	var req struct {
		UserID string `json:"userId" binding:"required"`
		Role   string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.AddParticipant(c.Request.Context(), c.Param("conversationId"), actorID, req.UserID, req.Role); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RemoveParticipant handles DELETE /conversations/:conversationId/participants/:userId.
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	actorID := middleware.MustUserID(c)

	if err := h.conversations.RemoveParticipant(c.Request.Context(), c.Param("conversationId"), actorID, c.Param("userId")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Rename handles PATCH /conversations/:conversationId/name.
func (h *ConversationHandler) Rename(c *gin.Context) {
	actorID := middleware.MustUserID(c)

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.RenameGroup(c.Request.Context(), c.Param("conversationId"), actorID, req.Name); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Archive handles POST /conversations/:conversationId/archive.
func (h *ConversationHandler) Archive(c *gin.Context) {
	h.setArchived(c, true)
}

// Unarchive handles POST /conversations/:conversationId/unarchive.
func (h *ConversationHandler) Unarchive(c *gin.Context) {
	h.setArchived(c, false)
}

func (h *ConversationHandler) setArchived(c *gin.Context, archived bool) {
	userID := middleware.MustUserID(c)

	if err := h.conversations.SetArchived(c.Request.Context(), c.Param("conversationId"), userID, archived); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Pin handles POST /conversations/:conversationId/pins/:messageId.
func (h *ConversationHandler) Pin(c *gin.Context) {
	userID := middleware.MustUserID(c)

	if err := h.conversations.PinMessage(c.Request.Context(), c.Param("conversationId"), userID, c.Param("messageId")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Unpin handles DELETE /conversations/:conversationId/pins/:messageId.
func (h *ConversationHandler) Unpin(c *gin.Context) {
	userID := middleware.MustUserID(c)

	if err := h.conversations.UnpinMessage(c.Request.Context(), c.Param("conversationId"), userID, c.Param("messageId")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lookupUsers fetches display fields for every active participant in the
// listed conversations. Enrichment is best-effort: an identity outage
// degrades the payload, it does not fail the request.
func (h *ConversationHandler) lookupUsers(c *gin.Context, conversations []model.Conversation) map[string]identity.User {
	seen := map[string]struct{}{}
	var ids []string
	for i := range conversations {
		for _, p := range conversations[i].ActiveParticipants() {
			if _, ok := seen[p.User]; ok {
				continue
			}
			seen[p.User] = struct{}{}
			ids = append(ids, p.User)
		}
	}

	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		h.logger.Warn("identity enrichment failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		return nil
	}

	byID := make(map[string]identity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID
}
