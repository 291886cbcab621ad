package realtime

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ideahub/pkg/identity"
	"ideahub/pkg/response"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// PresenceSink is driven by the socket lifecycle. Satisfied by the presence
// service.
type PresenceSink interface {
	Connected(ctx context.Context, userID string) error
	Disconnected(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string)
}

// frame is the client protocol: subscribe/unsubscribe manage streams, typing
// and read carry the two inbound signals that ride the socket instead of REST.
type frame struct {
	Action         string   `json:"action"`
	Stream         string   `json:"stream,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Typing         bool     `json:"typing,omitempty"`
	MessageIDs     []string `json:"message_ids,omitempty"`
}

type frameError struct {
	Error string `json:"error"`
}

type Handler struct {
	hub      *Hub
	manager  *ConnectionManager
	provider identity.Provider
	presence PresenceSink
	typing   TypingSink
	reads    ReadSink
	logger   *log.Logger
}

func NewHandler(hub *Hub, manager *ConnectionManager, provider identity.Provider,
	presence PresenceSink, typing TypingSink, reads ReadSink) *Handler {
	return &Handler{
		hub:      hub,
		manager:  manager,
		provider: provider,
		presence: presence,
		typing:   typing,
		reads:    reads,
		logger:   log.New(log.Writer(), "[realtime] ", log.LstdFlags),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin properly
		return true
	},
}

// HandleWebSocketGin authenticates via the token query parameter (browsers
// cannot set headers on websocket dials) or the Authorization header, then
// upgrades and starts the pumps.
func (h *Handler) HandleWebSocketGin(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	userID, err := identity.ParseToken(token, os.Getenv("JWT_SECRET"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	actor, err := h.provider.Resolve(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity not resolved"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade error: %v", err)
		return
	}

	client := h.manager.AddClient(actor.ID, uuid.New().String(), conn)
	h.logger.Printf("user %s connected (%s)", client.UserID, client.ConnID)

	ctx := context.Background()
	if err := h.presence.Connected(ctx, client.UserID); err != nil {
		h.logger.Printf("presence connect for %s: %v", client.UserID, err)
	}

	// Events addressed to the user always flow; conversation and profile
	// streams are attached on demand per open chat view.
	if err := h.hub.Subscribe(ctx, client, UserStream(client.UserID)); err != nil {
		h.logger.Printf("user stream subscribe for %s: %v", client.UserID, err)
	}

	go h.readPump(client)
	go h.writePump(client)
}

func (h *Handler) readPump(client *Client) {
	defer func() {
		ctx := context.Background()
		h.hub.Detach(ctx, client)
		stillOnline := h.manager.RemoveClient(client.UserID, client.ConnID)
		client.Conn.Close()
		h.logger.Printf("user %s disconnected (%s)", client.UserID, client.ConnID)

		if !stillOnline {
			if err := h.typing.ClearTyping(ctx, client.UserID); err != nil {
				h.logger.Printf("clear typing for %s: %v", client.UserID, err)
			}
			if err := h.presence.Disconnected(ctx, client.UserID); err != nil {
				h.logger.Printf("presence disconnect for %s: %v", client.UserID, err)
			}
		}
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		h.presence.Heartbeat(context.Background(), client.UserID)
		return nil
	})

	for {
		select {
		case <-client.Done:
			return
		default:
		}

		var f frame
		if err := client.Conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Printf("websocket error for user %s: %v", client.UserID, err)
			}
			return
		}

		h.dispatch(client, f)
	}
}

func (h *Handler) dispatch(client *Client, f frame) {
	ctx := context.Background()

	switch f.Action {
	case "subscribe":
		if err := h.hub.Subscribe(ctx, client, f.Stream); err != nil {
			h.sendError(client, "cannot subscribe to "+f.Stream)
		}

	case "unsubscribe":
		h.hub.Unsubscribe(ctx, client, f.Stream)

	case "typing":
		var err error
		if f.Typing {
			err = h.typing.SetTyping(ctx, client.UserID, f.ConversationID)
		} else {
			err = h.typing.ClearTyping(ctx, client.UserID)
		}
		if err != nil {
			h.logger.Printf("typing update for %s: %v", client.UserID, err)
		}

	case "read":
		if len(f.MessageIDs) == 0 {
			h.sendError(client, "message_ids required for read frame")
			return
		}
		if _, err := h.reads.MarkRead(ctx, client.UserID, f.ConversationID, f.MessageIDs); err != nil {
			h.logger.Printf("read frame for %s: %v", client.UserID, err)
			h.sendError(client, "failed to mark messages as read")
		}

	default:
		h.sendError(client, "unknown action: "+f.Action)
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done:
			return

		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Printf("write error for user %s: %v", client.UserID, err)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Printf("ping error for user %s: %v", client.UserID, err)
				return
			}
		}
	}
}

func (h *Handler) sendError(client *Client, msg string) {
	event := Event{Type: "error", Payload: frameError{Error: msg}}
	select {
	case client.Send <- event:
	case <-client.Done:
	}
}

// GetStatusGin reports users with an active socket on this instance.
// @Summary      Get online users
// @Description  Returns users with an active realtime connection
// @Tags         realtime
// @Produce      json
// @Success      200  {object}  response.APIResponse
// @Router       /realtime/status [get]
func (h *Handler) GetStatusGin(c *gin.Context) {
	users := h.manager.OnlineUsers()
	response.SendAPIResponse(c, http.StatusOK, true, "online status", map[string]any{
		"online_users": users,
		"count":        len(users),
	})
}
