package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/service-booking/internal/application"
	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/middleware"
	"github.com/taskhive/service-booking/pkg/response"
)

// MessageHandler handles direct messages between users.
type MessageHandler struct {
	service *application.MessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(service *application.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// RegisterRoutes registers message routes.
func (h *MessageHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	messages := r.Group("/api/v1/messages")
	messages.Use(middleware.AuthMiddleware(jwtManager))
	{
		messages.POST("", h.Send)
		messages.GET("", h.Conversation)
	}
}

// Send handles POST /api/v1/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SendMessage(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// Conversation handles GET /api/v1/messages?with=<userId>.
func (h *MessageHandler) Conversation(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	otherID, err := uuid.Parse(c.Query("with"))
	if err != nil {
		response.BadRequest(c, "query parameter 'with' must be a user ID")
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.GetConversation(c.Request.Context(), userID, otherID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}
