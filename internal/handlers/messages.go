package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"agentspace/internal/models"
	"agentspace/internal/services"
)

// MessageService is the read/write path used by MessageHandler.
type MessageService interface {
	List(ctx context.Context, q services.ListQuery) (models.MessagePage, error)
	Create(ctx context.Context, in services.CreateInput) (models.MessageView, error)
}

// MessageHandler serves /api/messages.
type MessageHandler struct {
	messages MessageService
	logger   *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService, logger *zap.Logger) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandler{messages: messages, logger: logger}
}

// ListMessages returns a cursor page when after_id is given, otherwise a numbered page.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	page, err := h.messages.List(c.Request.Context(), services.ListQuery{
		AfterID: c.Query("after_id"),
		Page:    c.Query("page"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostMessage stores a message and broadcasts it to push clients.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	// Fields are decoded loosely so a non-string value fails the length
	// validation with the usual message rather than a decoder error.
	var req struct {
		Name any `json:"name"`
		Text any `json:"text"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	name, _ := req.Name.(string)
	text, _ := req.Text.(string)

	msg, err := h.messages.Create(c.Request.Context(), services.CreateInput{
		Name:     name,
		Text:     text,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
