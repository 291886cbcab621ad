package message

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ideahub/pkg/blob"
	"ideahub/pkg/conversation"
	"ideahub/pkg/identity"
	"ideahub/pkg/response"
)

type MessageHandler struct {
	service MessageService
}

func NewMessageHandler(service MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/conversations/:id/messages", h.history)
	router.POST("/conversations/:id/messages", h.send)
	router.POST("/conversations/:id/read", h.markRead)
	router.DELETE("/messages/:id", h.softDelete)
	router.PUT("/messages/:id/reaction", h.react)
}

// @Summary      Get message history
// @Description  Newest messages before the cursor, returned oldest first; page back with before
// @Tags         messages
// @Produce      json
// @Param        id      path   string  true   "Conversation ID"
// @Param        limit   query  int     false  "Maximum messages to return (max 100)"
// @Param        before  query  int     false  "Epoch seconds cursor for pagination"
// @Success      200  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Router       /conversations/{id}/messages [get]
func (h *MessageHandler) history(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	limit := 50
	if ls := c.Query("limit"); ls != "" {
		parsed, err := strconv.Atoi(ls)
		if err != nil {
			response.SendError(c, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	before := time.Now()
	if bs := c.Query("before"); bs != "" {
		epoch, err := strconv.ParseInt(bs, 10, 64)
		if err != nil {
			response.SendError(c, http.StatusBadRequest, "invalid before parameter")
			return
		}
		before = time.Unix(epoch, 0)
	}

	messages, err := h.service.History(c.Request.Context(), actor.ID, c.Param("id"), limit, before)
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "messages", map[string]any{
		"items": messages,
		"count": len(messages),
	})
}

// @Summary      Send a message
// @Description  Compound send: an optional text part plus up to 10 files, each recorded as its own message
// @Tags         messages
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true   "Conversation ID"
// @Param        text  formData  string  false  "Text body"
// @Param        files formData  file    false  "Attachments"
// @Success      201  {object}  response.APIResponse
// @Failure      400  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Failure      502  {object}  response.APIResponse
// @Router       /conversations/{id}/messages [post]
func (h *MessageHandler) send(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	text := c.PostForm("text")

	var attachments []Attachment
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, header := range form.File["files"] {
			f, err := header.Open()
			if err != nil {
				response.SendError(c, http.StatusBadRequest, "unreadable attachment: "+header.Filename)
				return
			}
			defer f.Close()
			attachments = append(attachments, Attachment{
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        f,
			})
		}
	}

	sent, err := h.service.Send(c.Request.Context(), actor, c.Param("id"), text, attachments)
	if err != nil {
		if errors.Is(err, blob.ErrUploadFailed) {
			// Earlier parts may have been recorded; the client retries the rest.
			response.SendAPIResponse(c, http.StatusBadGateway, false, "attachment upload failed", map[string]any{
				"sent": sent,
			})
			return
		}
		h.sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "messages sent", map[string]any{
		"items": sent,
		"count": len(sent),
	})
}

type markReadBody struct {
	MessageIDs []string `json:"message_ids" binding:"required"`
}

// @Summary      Mark messages read
// @Description  Batched read receipt for one observation of the feed; idempotent
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        id      path  string        true  "Conversation ID"
// @Param        request body  markReadBody  true  "Message ids in the visible window"
// @Success      200  {object}  response.APIResponse
// @Failure      403  {object}  response.APIResponse
// @Router       /conversations/{id}/read [post]
func (h *MessageHandler) markRead(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	var body markReadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	changed, err := h.service.MarkRead(c.Request.Context(), actor.ID, c.Param("id"), body.MessageIDs)
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "messages marked read", map[string]any{
		"marked": changed,
	})
}

// @Summary      Delete a message
// @Description  Soft delete; only the sender may delete, and only once
// @Tags         messages
// @Produce      json
// @Param        id  path  string  true  "Message ID"
// @Success      200  {object}  response.APIResponse{data=Message}
// @Failure      403  {object}  response.APIResponse
// @Failure      404  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /messages/{id} [delete]
func (h *MessageHandler) softDelete(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	m, err := h.service.SoftDelete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "message deleted", m)
}

type reactBody struct {
	Emoji string `json:"emoji"` // empty clears the caller's reaction
}

// @Summary      React to a message
// @Description  One reaction slot per user: same emoji toggles off, a different emoji replaces, empty clears
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        id      path  string     true  "Message ID"
// @Param        request body  reactBody  true  "Emoji"
// @Success      200  {object}  response.APIResponse{data=Message}
// @Failure      403  {object}  response.APIResponse
// @Failure      409  {object}  response.APIResponse
// @Router       /messages/{id}/reaction [put]
func (h *MessageHandler) react(c *gin.Context) {
	actor, ok := identity.FromContext(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
		return
	}

	var body reactBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	m, err := h.service.React(c.Request.Context(), actor, c.Param("id"), body.Emoji)
	if err != nil {
		h.sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "reaction updated", m)
}

func (h *MessageHandler) sendServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, ErrNotFound):
		response.SendError(c, http.StatusNotFound, "not found")
	case errors.Is(err, conversation.ErrNotParticipant):
		response.SendError(c, http.StatusForbidden, "not a participant")
	case errors.Is(err, identity.ErrNotAuthorized):
		response.SendError(c, http.StatusForbidden, "not authorized")
	case errors.Is(err, identity.ErrIdentityUnavailable):
		response.SendError(c, http.StatusUnauthorized, "identity not resolved")
	case errors.Is(err, ErrEmptyMessage):
		response.SendError(c, http.StatusBadRequest, "message has no text and no attachments")
	case errors.Is(err, ErrMessageTooLong):
		response.SendError(c, http.StatusBadRequest, "message content too long (max 10000 characters)")
	case errors.Is(err, ErrTooManyAttachments):
		response.SendError(c, http.StatusBadRequest, "you can send up to 10 files at a time")
	case errors.Is(err, ErrAlreadyDeleted):
		response.SendError(c, http.StatusConflict, "message already deleted")
	default:
		response.SendError(c, http.StatusInternalServerError, err.Error())
	}
}
