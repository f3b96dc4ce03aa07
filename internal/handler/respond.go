package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messaging-service/internal/apperr"
	"messaging-service/internal/middleware"
)

// respondError maps an error kind to its HTTP status. Unclassified errors
// are treated as internal: logged with their cause, surfaced without it.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperr.Error
	message := "internal error"
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
	case apperr.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": message})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": message})
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": message})
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
