package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ideahub/pkg/profile"
)

type stubTracker struct {
	online  map[string]bool
	err     error
	touched []string
}

func (s *stubTracker) MarkOnline(ctx context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	s.online[userID] = true
	s.touched = append(s.touched, userID)
	return nil
}

func (s *stubTracker) MarkOffline(ctx context.Context, userID string) error {
	if s.err != nil {
		return s.err
	}
	delete(s.online, userID)
	return nil
}

func (s *stubTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.online[userID], nil
}

type stubProfiles struct {
	profiles map[string]profile.Profile
	touched  []string
}

func (s *stubProfiles) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	return s.profiles[userID], nil
}

func (s *stubProfiles) TouchLastSeen(ctx context.Context, userID string) error {
	s.touched = append(s.touched, userID)
	return nil
}

func (s *stubProfiles) SetTyping(ctx context.Context, userID, conversationID string) error {
	return nil
}

func (s *stubProfiles) ClearTyping(ctx context.Context, userID string) error { return nil }

func newPresenceFixture(now time.Time) (*presenceService, *stubTracker, *stubProfiles) {
	tracker := &stubTracker{online: make(map[string]bool)}
	profiles := &stubProfiles{profiles: make(map[string]profile.Profile)}
	svc := NewPresenceService(tracker, profiles).(*presenceService)
	svc.now = func() time.Time { return now }
	return svc, tracker, profiles
}

func TestPeerStatusPriority(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	svc, tracker, profiles := newPresenceFixture(now)
	ctx := context.Background()

	convID := "idea-1_alice_bob"
	lastSeen := now.Add(-2 * time.Hour)
	profiles.profiles["bob"] = profile.Profile{
		UserID:   "bob",
		TypingIn: &convID,
		LastSeen: &lastSeen,
	}
	tracker.online["bob"] = true

	// Typing wins over online.
	status, err := svc.PeerStatus(ctx, convID, "bob")
	require.NoError(t, err)
	require.Equal(t, StateTyping, status.State)

	// Typing in a different conversation does not leak into this header.
	status, err = svc.PeerStatus(ctx, "idea-2_alice_bob", "bob")
	require.NoError(t, err)
	require.Equal(t, StateOnline, status.State)

	// Online wins over last seen.
	profiles.profiles["bob"] = profile.Profile{UserID: "bob", LastSeen: &lastSeen}
	status, err = svc.PeerStatus(ctx, convID, "bob")
	require.NoError(t, err)
	require.Equal(t, StateOnline, status.State)
	require.Empty(t, status.Text)

	delete(tracker.online, "bob")
	status, err = svc.PeerStatus(ctx, convID, "bob")
	require.NoError(t, err)
	require.Equal(t, StateOffline, status.State)
	require.Equal(t, "Last seen today at 1:00 PM", status.Text)
}

func TestPeerStatusDegradesOnTrackerFailure(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	svc, tracker, profiles := newPresenceFixture(now)

	lastSeen := now.Add(-30 * time.Minute)
	profiles.profiles["bob"] = profile.Profile{UserID: "bob", LastSeen: &lastSeen}
	tracker.err = ErrTransportUnavailable

	// A transport failure never reaches the chat view; it reads as offline.
	status, err := svc.PeerStatus(context.Background(), "idea-1_alice_bob", "bob")
	require.NoError(t, err)
	require.Equal(t, StateOffline, status.State)
	require.NotEmpty(t, status.Text)
}

func TestConnectLifecycleTouchesLastSeen(t *testing.T) {
	svc, tracker, profiles := newPresenceFixture(time.Now())
	ctx := context.Background()

	require.NoError(t, svc.Connected(ctx, "alice"))
	online, err := tracker.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.True(t, online)

	require.NoError(t, svc.Disconnected(ctx, "alice"))
	online, err = tracker.IsOnline(ctx, "alice")
	require.NoError(t, err)
	require.False(t, online)

	require.Equal(t, []string{"alice", "alice"}, profiles.touched)
}

func TestFormatLastSeen(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		lastSeen *time.Time
		want     string
	}{
		{"never seen", nil, "Last seen recently"},
		{"same day", timePtr(now.Add(-3 * time.Hour)), "Last seen today at 12:00 PM"},
		{"yesterday", timePtr(now.Add(-26 * time.Hour)), "Last seen yesterday at 1:00 PM"},
		{"older", timePtr(time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)), "Last seen on 5/20/2025 at 9:30 AM"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatLastSeen(tc.lastSeen, now))
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
