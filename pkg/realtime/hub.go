package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"ideahub/pkg/conversation"
)

var ErrNotSubscribable = errors.New("stream not subscribable")

// MembershipChecker gates conversation stream subscriptions. Satisfied by the
// conversation service.
type MembershipChecker interface {
	GetForUser(ctx context.Context, id, userID string) (conversation.Conversation, error)
}

// TypingSink receives typing frames. Satisfied by the profile service.
type TypingSink interface {
	SetTyping(ctx context.Context, userID, conversationID string) error
	ClearTyping(ctx context.Context, userID string) error
}

// ReadSink receives read frames. Satisfied by the message service.
type ReadSink interface {
	MarkRead(ctx context.Context, reader, conversationID string, messageIDs []string) ([]string, error)
}

// channelSubscriber is the slice of *redis.PubSub the hub's stream
// bookkeeping talks to.
type channelSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}

// Hub bridges redis pub/sub channels to websocket subscriptions. Every
// instance runs one hub; services publish through the bus and each hub
// forwards to its local subscribers. Streams are forwarded independently, so
// there is no ordering guarantee across streams.
type Hub struct {
	manager     *ConnectionManager
	pubsub      *redis.PubSub
	subs        channelSubscriber
	memberships MembershipChecker
	logger      *log.Logger

	mu          sync.Mutex
	subscribers map[string]map[*Client]struct{} // stream -> clients
	streams     map[*Client]map[string]struct{} // reverse index for teardown
}

func NewHub(client *redis.Client, manager *ConnectionManager, memberships MembershipChecker) *Hub {
	pubsub := client.Subscribe(context.Background())
	return &Hub{
		manager:     manager,
		pubsub:      pubsub,
		subs:        pubsub,
		memberships: memberships,
		logger:      log.New(log.Writer(), "[realtime] ", log.LstdFlags),
		subscribers: make(map[string]map[*Client]struct{}),
		streams:     make(map[*Client]map[string]struct{}),
	}
}

// Run forwards redis messages to local subscribers until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOut(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) fanOut(stream string, payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Printf("bad event on %s: %v", stream, err)
		return
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.subscribers[stream]))
	for client := range h.subscribers[stream] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if err := h.manager.Deliver(client, event); err != nil {
			h.logger.Printf("deliver %s: %v", stream, err)
		}
	}
}

// Subscribe attaches a client to a stream. Conversation streams require
// membership; user and profile streams carry no payload a non-member could
// not fetch over REST, so they are open to any authenticated client.
func (h *Hub) Subscribe(ctx context.Context, client *Client, stream string) error {
	if convID, ok := strings.CutPrefix(stream, "conv:"); ok {
		if _, err := h.memberships.GetForUser(ctx, convID, client.UserID); err != nil {
			return err
		}
	} else if !strings.HasPrefix(stream, "user:") && !strings.HasPrefix(stream, "profile:") {
		return ErrNotSubscribable
	}

	h.mu.Lock()
	first := len(h.subscribers[stream]) == 0
	if h.subscribers[stream] == nil {
		h.subscribers[stream] = make(map[*Client]struct{})
	}
	h.subscribers[stream][client] = struct{}{}
	if h.streams[client] == nil {
		h.streams[client] = make(map[string]struct{})
	}
	h.streams[client][stream] = struct{}{}
	h.mu.Unlock()

	// The redis round trip happens outside the lock so a slow broker cannot
	// stall fan-out. Clients joining the same stream meanwhile see
	// first=false and rely on this call, so a failure rolls back the whole
	// stream rather than leave anyone registered without a redis channel.
	if first {
		if err := h.subs.Subscribe(ctx, stream); err != nil {
			h.dropStream(stream)
			return err
		}
	}
	return nil
}

// dropStream clears all local bookkeeping for a stream after its redis
// subscription could not be established.
func (h *Hub) dropStream(stream string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.subscribers[stream] {
		delete(h.streams[client], stream)
	}
	delete(h.subscribers, stream)
}

// Unsubscribe detaches a client from one stream, dropping the redis channel
// when its last local subscriber leaves.
func (h *Hub) Unsubscribe(ctx context.Context, client *Client, stream string) {
	h.mu.Lock()
	empty := h.detach(client, stream)
	h.mu.Unlock()

	if empty {
		h.dropChannel(ctx, stream)
	}
}

// Detach releases every stream held by a disconnecting client.
func (h *Hub) Detach(ctx context.Context, client *Client) {
	h.mu.Lock()
	var emptied []string
	for stream := range h.streams[client] {
		if h.detach(client, stream) {
			emptied = append(emptied, stream)
		}
	}
	delete(h.streams, client)
	h.mu.Unlock()

	for _, stream := range emptied {
		h.dropChannel(ctx, stream)
	}
}

// detach removes the client from the stream's local bookkeeping and reports
// whether the stream lost its last subscriber. Callers hold h.mu.
func (h *Hub) detach(client *Client, stream string) bool {
	empty := false
	if subs, ok := h.subscribers[stream]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, stream)
			empty = true
		}
	}
	if streams, ok := h.streams[client]; ok {
		delete(streams, stream)
	}
	return empty
}

func (h *Hub) dropChannel(ctx context.Context, stream string) {
	if err := h.subs.Unsubscribe(ctx, stream); err != nil {
		h.logger.Printf("unsubscribe %s: %v", stream, err)
	}
}
