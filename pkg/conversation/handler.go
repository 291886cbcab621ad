package conversation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ideahub/pkg/identity"
	"ideahub/pkg/response"
)

type ConversationHandler struct {
	service ConversationService
}

func NewConversationHandler(service ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/conversations", h.listConversations)
	router.GET("/conversations/:id", h.getConversation)
}

// @Summary      List my conversations
// @Description  Conversations for the current user, most recently active first
// @Tags         conversations
// @Produce      json
// @Success      200  {object}  response.APIResponse
// @Failure      401  {object}  response.APIResponse
// @Router       /conversations [get]
func (h *ConversationHandler) listConversations(c *gin.Context) {
	id, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	conversations, err := h.service.ListForUser(c.Request.Context(), id.ID)
	if err != nil {
		response.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "conversations", map[string]any{
		"items": conversations,
		"count": len(conversations),
	})
}

// @Summary      Get a conversation
// @Description  Fetch one conversation; caller must be a participant
// @Tags         conversations
// @Produce      json
// @Param        id  path  string  true  "Conversation ID"
// @Success      200  {object}  response.APIResponse{data=Conversation}
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /conversations/{id} [get]
func (h *ConversationHandler) getConversation(c *gin.Context) {
	id, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	conv, err := h.service.GetForUser(c.Request.Context(), c.Param("id"), id.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.SendError(c, http.StatusNotFound, "conversation not found")
		case errors.Is(err, ErrNotParticipant):
			response.SendError(c, http.StatusForbidden, "not a participant")
		default:
			response.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "conversation", conv)
}
