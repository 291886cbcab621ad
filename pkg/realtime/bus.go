package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Stream name builders. One redis channel per stream; clients subscribe to the
// same names over the websocket.
func UserStream(userID string) string         { return "user:" + userID }
func ConversationStream(convID string) string { return "conv:" + convID }
func ProfileStream(userID string) string      { return "profile:" + userID }

// Event is the envelope delivered on every stream. Payload is the entity the
// event refers to, already shaped for clients.
type Event struct {
	Type    string `json:"type"`
	Stream  string `json:"stream"`
	Payload any    `json:"payload,omitempty"`
}

// Publisher fans events out to every instance's hub. Services treat publishes
// as best-effort: a dropped event is recovered by the next feed refresh.
type Publisher interface {
	Publish(ctx context.Context, stream string, event Event)
}

type redisBus struct {
	client *redis.Client
	logger *log.Logger
}

func NewBus(client *redis.Client) Publisher {
	return &redisBus{
		client: client,
		logger: log.New(log.Writer(), "[realtime] ", log.LstdFlags),
	}
}

func (b *redisBus) Publish(ctx context.Context, stream string, event Event) {
	event.Stream = stream
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Printf("marshal event for %s: %v", stream, err)
		return
	}
	if err := b.client.Publish(ctx, stream, payload).Err(); err != nil {
		b.logger.Printf("publish to %s: %v", stream, err)
	}
}

// NopPublisher discards events; used in tests and as a default when no bus is
// injected.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, stream string, event Event) {}
