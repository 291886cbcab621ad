package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"ideahub/pkg/profile"
)

const (
	StateTyping  = "typing"
	StateOnline  = "online"
	StateOffline = "offline"
)

// HeaderStatus is what the chat header shows for the peer. Text is only set
// for the offline state; typing and online render their own labels.
type HeaderStatus struct {
	State string `json:"state"`
	Text  string `json:"text,omitempty"`
}

type PresenceService interface {
	// Connected and Disconnected are driven by the realtime hub's socket
	// lifecycle. Both also touch the durable last_seen fallback.
	Connected(ctx context.Context, userID string) error
	Disconnected(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string)

	// PeerStatus resolves the header line for the peer of one open chat
	// view, with priority typing > online > last seen.
	PeerStatus(ctx context.Context, conversationID, peerID string) (HeaderStatus, error)
}

type presenceService struct {
	tracker  Tracker
	profiles profile.ProfileService
	now      func() time.Time
	logger   *log.Logger
}

func NewPresenceService(tracker Tracker, profiles profile.ProfileService) PresenceService {
	return &presenceService{
		tracker:  tracker,
		profiles: profiles,
		now:      time.Now,
		logger:   log.New(log.Writer(), "[presence] ", log.LstdFlags),
	}
}

func (s *presenceService) Connected(ctx context.Context, userID string) error {
	if err := s.tracker.MarkOnline(ctx, userID); err != nil {
		s.logger.Printf("mark online %s: %v", userID, err)
	}
	return s.profiles.TouchLastSeen(ctx, userID)
}

func (s *presenceService) Disconnected(ctx context.Context, userID string) error {
	if err := s.tracker.MarkOffline(ctx, userID); err != nil {
		s.logger.Printf("mark offline %s: %v", userID, err)
	}
	return s.profiles.TouchLastSeen(ctx, userID)
}

// Heartbeat refreshes the marker TTL. Fire and forget; a missed refresh just
// lets the marker expire early.
func (s *presenceService) Heartbeat(ctx context.Context, userID string) {
	if err := s.tracker.MarkOnline(ctx, userID); err != nil {
		s.logger.Printf("heartbeat %s: %v", userID, err)
	}
}

// PeerStatus never fails on a presence transport error: the view falls back
// to the last-seen line. Only a missing peer profile is an error.
func (s *presenceService) PeerStatus(ctx context.Context, conversationID, peerID string) (HeaderStatus, error) {
	peer, err := s.profiles.GetProfile(ctx, peerID)
	if err != nil {
		return HeaderStatus{}, err
	}

	if peer.TypingIn != nil && *peer.TypingIn == conversationID {
		return HeaderStatus{State: StateTyping}, nil
	}

	online, err := s.tracker.IsOnline(ctx, peerID)
	if err != nil {
		s.logger.Printf("is online %s: %v", peerID, err)
	}
	if online {
		return HeaderStatus{State: StateOnline}, nil
	}

	return HeaderStatus{State: StateOffline, Text: FormatLastSeen(peer.LastSeen, s.now())}, nil
}

// FormatLastSeen renders the offline header line. Buckets are 24-hour
// windows from now, not calendar days.
func FormatLastSeen(lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return "Last seen recently"
	}

	last := lastSeen.In(now.Location())
	clock := last.Format("3:04 PM")

	switch days := int(now.Sub(last).Hours() / 24); days {
	case 0:
		return fmt.Sprintf("Last seen today at %s", clock)
	case 1:
		return fmt.Sprintf("Last seen yesterday at %s", clock)
	default:
		return fmt.Sprintf("Last seen on %s at %s", last.Format("1/2/2006"), clock)
	}
}
