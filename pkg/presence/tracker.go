package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTransportUnavailable signals that the presence backend could not be
// reached. Callers degrade to last-seen text instead of surfacing it.
var ErrTransportUnavailable = errors.New("presence transport unavailable")

const markerTTL = 60 * time.Second

// Tracker holds the ephemeral online markers. Redis is the only source of
// truth for online/offline; the durable profile row only keeps last_seen.
type Tracker interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type redisTracker struct {
	client *redis.Client
}

func NewRedisTracker(client *redis.Client) Tracker {
	return &redisTracker{client: client}
}

func markerKey(userID string) string { return "presence:" + userID }

// MarkOnline sets the marker with a TTL. The realtime hub calls it again on
// every ping, so a crashed instance's markers expire on their own.
func (t *redisTracker) MarkOnline(ctx context.Context, userID string) error {
	if err := t.client.Set(ctx, markerKey(userID), "online", markerTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

func (t *redisTracker) MarkOffline(ctx context.Context, userID string) error {
	if err := t.client.Del(ctx, markerKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

func (t *redisTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.client.Exists(ctx, markerKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return n > 0, nil
}
