package presence

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ideahub/pkg/conversation"
	"ideahub/pkg/identity"
	"ideahub/pkg/response"
)

type PresenceHandler struct {
	service       PresenceService
	conversations conversation.ConversationService
}

func NewPresenceHandler(service PresenceService, conversations conversation.ConversationService) *PresenceHandler {
	return &PresenceHandler{service: service, conversations: conversations}
}

func (h *PresenceHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/conversations/:id/peer-status", h.peerStatus)
}

// @Summary      Peer status for the chat header
// @Description  Resolves the other participant's header line: typing, online, or a last-seen text
// @Tags         presence
// @Produce      json
// @Param        id  path  string  true  "Conversation ID"
// @Success      200  {object}  response.APIResponse{data=HeaderStatus}
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /conversations/{id}/peer-status [get]
func (h *PresenceHandler) peerStatus(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	conv, err := h.conversations.GetForUser(c.Request.Context(), c.Param("id"), actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			response.SendError(c, http.StatusNotFound, "conversation not found")
		case errors.Is(err, conversation.ErrNotParticipant):
			response.SendError(c, http.StatusForbidden, "not a participant")
		default:
			response.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	status, err := h.service.PeerStatus(c.Request.Context(), conv.ID, conv.Peer(actor.ID))
	if err != nil {
		response.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "peer status", status)
}
