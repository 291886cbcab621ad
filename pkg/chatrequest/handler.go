package chatrequest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ideahub/pkg/identity"
	"ideahub/pkg/response"
)

type RequestHandler struct {
	service RequestService
}

func NewRequestHandler(service RequestService) *RequestHandler {
	return &RequestHandler{service: service}
}

func (h *RequestHandler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/chat-requests", h.requestChat)
	router.GET("/chat-requests/incoming", h.listIncoming)
	router.POST("/chat-requests/:id/respond", h.respond)
}

type requestChatBody struct {
	ContextID    string `json:"context_id" binding:"required"`
	ContextTitle string `json:"context_title"`
	OwnerID      string `json:"owner_id" binding:"required"`
}

type respondBody struct {
	Decision string `json:"decision" binding:"required"` // "accept" or "reject"
}

// @Summary      Request a chat with an idea owner
// @Description  Creates or resends a pending chat request for the given idea
// @Tags         chat-requests
// @Accept       json
// @Produce      json
// @Param        request body requestChatBody true "Chat request"
// @Success      201  {object}  response.APIResponse{data=Outcome}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /chat-requests [post]
func (h *RequestHandler) requestChat(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	var body requestChatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	outcome, err := h.service.RequestChat(c.Request.Context(), actor, body.ContextID, body.ContextTitle, body.OwnerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfChat):
			response.SendError(c, http.StatusBadRequest, "you cannot chat with yourself")
		case errors.Is(err, ErrDuplicateRequest):
			response.SendError(c, http.StatusConflict, "chat request already sent, awaiting approval")
		case errors.Is(err, identity.ErrNotAuthorized):
			response.SendError(c, http.StatusForbidden, "account not allowed to send chat requests")
		case errors.Is(err, identity.ErrIdentityUnavailable):
			response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		default:
			response.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if outcome.Status == StatusAccepted {
		response.SendAPIResponse(c, http.StatusOK, true, "chat already accepted", outcome)
		return
	}
	message := "chat request sent"
	if outcome.Resent {
		message = "chat request re-sent"
	}
	response.SendAPIResponse(c, http.StatusCreated, true, message, outcome)
}

// @Summary      List incoming chat requests
// @Description  Pending chat requests addressed to the current user, newest first
// @Tags         chat-requests
// @Produce      json
// @Success      200  {object}  response.APIResponse
// @Failure      401  {object}  response.APIResponse
// @Router       /chat-requests/incoming [get]
func (h *RequestHandler) listIncoming(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	requests, err := h.service.ListIncoming(c.Request.Context(), actor.ID)
	if err != nil {
		response.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "incoming chat requests", map[string]any{
		"items": requests,
		"count": len(requests),
	})
}

// @Summary      Respond to a chat request
// @Description  Accept or reject a pending chat request; only the owner may respond
// @Tags         chat-requests
// @Accept       json
// @Produce      json
// @Param        id path string true "Request ID"
// @Param        request body respondBody true "Decision"
// @Success      200  {object}  response.APIResponse{data=Request}
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /chat-requests/{id}/respond [post]
func (h *RequestHandler) respond(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	var body respondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	if body.Decision != "accept" && body.Decision != "reject" {
		response.SendError(c, http.StatusBadRequest, "decision must be accept or reject")
		return
	}

	req, err := h.service.Respond(c.Request.Context(), actor, c.Param("id"), body.Decision == "accept")
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.SendError(c, http.StatusNotFound, "chat request not found")
		case errors.Is(err, ErrAlreadyHandled):
			response.SendError(c, http.StatusConflict, "chat request already handled")
		case errors.Is(err, identity.ErrNotAuthorized):
			response.SendError(c, http.StatusForbidden, "only the owner can respond")
		default:
			response.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "chat request "+req.Status, req)
}
