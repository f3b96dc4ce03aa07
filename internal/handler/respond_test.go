package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"messaging-service/internal/apperr"
	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
)

func TestInternalErrorLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	svc := new(mocks.MessageService)
	svc.On("Send", mock.Anything, mock.Anything).Return(nil, apperr.Internal(assert.AnError, "boom"))

	h := NewMessageHandler(svc, logger)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(asUser("alice"))
	r.POST("/messages", h.Send)

	w := doJSONWithHeader(t, r, http.MethodPost, "/messages", gin.H{
		"conversationId": primitive.NewObjectID().Hex(),
		"content":        "hello",
	}, "X-Request-ID", "req-abc-123")

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-abc-123", fields["request_id"], "error logs must be correlatable to the request")
}

func doJSONWithHeader(t *testing.T, r *gin.Engine, method, path string, body any, headerKey, headerValue string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerKey, headerValue)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
