package realtime

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ideahub/pkg/conversation"
)

// fakeChannelSubscriber stands in for the redis pub/sub connection. It can be
// made to fail or to stall until released.
type fakeChannelSubscriber struct {
	subscribed   []string
	unsubscribed []string
	err          error
	started      chan struct{}
	release      chan struct{}
}

func (f *fakeChannelSubscriber) Subscribe(ctx context.Context, channels ...string) error {
	f.subscribed = append(f.subscribed, channels...)
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		<-f.release
	}
	return f.err
}

func (f *fakeChannelSubscriber) Unsubscribe(ctx context.Context, channels ...string) error {
	f.unsubscribed = append(f.unsubscribed, channels...)
	return nil
}

type memberOfEverything struct{}

func (memberOfEverything) GetForUser(ctx context.Context, id, userID string) (conversation.Conversation, error) {
	return conversation.Conversation{ID: id}, nil
}

func newTestHub(subs channelSubscriber) *Hub {
	return &Hub{
		manager:     NewConnectionManager(),
		subs:        subs,
		memberships: memberOfEverything{},
		logger:      log.New(log.Writer(), "[realtime] ", log.LstdFlags),
		subscribers: make(map[string]map[*Client]struct{}),
		streams:     make(map[*Client]map[string]struct{}),
	}
}

func newHubClient(userID, connID string) *Client {
	return &Client{UserID: userID, ConnID: connID, Send: make(chan Event, 4), Done: make(chan struct{})}
}

func TestHubSubscribeSharesOneChannel(t *testing.T) {
	subs := &fakeChannelSubscriber{}
	hub := newTestHub(subs)
	ctx := context.Background()

	a := newHubClient("alice", "c1")
	b := newHubClient("bob", "c2")
	require.NoError(t, hub.Subscribe(ctx, a, "user:carol"))
	require.NoError(t, hub.Subscribe(ctx, b, "user:carol"))

	// One redis channel serves both local subscribers.
	require.Equal(t, []string{"user:carol"}, subs.subscribed)

	hub.Unsubscribe(ctx, a, "user:carol")
	require.Empty(t, subs.unsubscribed)
	hub.Unsubscribe(ctx, b, "user:carol")
	require.Equal(t, []string{"user:carol"}, subs.unsubscribed)
}

func TestHubRejectsUnknownStreams(t *testing.T) {
	hub := newTestHub(&fakeChannelSubscriber{})

	err := hub.Subscribe(context.Background(), newHubClient("alice", "c1"), "admin:all")
	require.ErrorIs(t, err, ErrNotSubscribable)
}

// A stalled redis subscribe must not hold the hub lock: other subscriptions
// and fan-out keep moving while the broker round trip is in flight.
func TestHubSubscribeDoesNotBlockHubWhileBrokerStalls(t *testing.T) {
	subs := &fakeChannelSubscriber{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	hub := newTestHub(subs)
	ctx := context.Background()

	first := newHubClient("alice", "c1")
	done := make(chan error, 1)
	go func() {
		done <- hub.Subscribe(ctx, first, "user:carol")
	}()
	<-subs.started

	// The stream already has a local subscriber, so this join needs no
	// broker call and must return while the first one is still stalled.
	second := newHubClient("bob", "c2")
	joined := make(chan error, 1)
	go func() {
		joined <- hub.Subscribe(ctx, second, "user:carol")
	}()
	select {
	case err := <-joined:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscribe blocked behind a stalled broker call")
	}

	close(subs.release)
	require.NoError(t, <-done)
	require.Equal(t, []string{"user:carol"}, subs.subscribed)
}

func TestHubSubscribeRollsBackOnBrokerFailure(t *testing.T) {
	subs := &fakeChannelSubscriber{err: errors.New("broker down")}
	hub := newTestHub(subs)
	ctx := context.Background()

	client := newHubClient("alice", "c1")
	require.Error(t, hub.Subscribe(ctx, client, "user:carol"))

	hub.mu.Lock()
	require.Empty(t, hub.subscribers)
	require.Empty(t, hub.streams[client])
	hub.mu.Unlock()

	// A later attempt starts clean and tries the broker again.
	subs.err = nil
	require.NoError(t, hub.Subscribe(ctx, client, "user:carol"))
	require.Equal(t, []string{"user:carol", "user:carol"}, subs.subscribed)
}
