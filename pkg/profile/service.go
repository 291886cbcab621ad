package profile

import (
	"context"

	"ideahub/pkg/realtime"
)

type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	TouchLastSeen(ctx context.Context, userID string) error
	SetTyping(ctx context.Context, userID, conversationID string) error
	ClearTyping(ctx context.Context, userID string) error
}

type profileService struct {
	repo ProfileRepository
	bus  realtime.Publisher
}

func NewProfileService(repo ProfileRepository, bus realtime.Publisher) ProfileService {
	return &profileService{repo: repo, bus: bus}
}

func (s *profileService) GetProfile(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// TouchLastSeen is the opportunistic fallback write behind the ephemeral
// presence channel. Callers ignore its error beyond logging.
func (s *profileService) TouchLastSeen(ctx context.Context, userID string) error {
	return s.repo.UpdateLastSeen(ctx, userID)
}

func (s *profileService) SetTyping(ctx context.Context, userID, conversationID string) error {
	if err := s.repo.SetTyping(ctx, userID, &conversationID); err != nil {
		return err
	}
	s.bus.Publish(ctx, realtime.ProfileStream(userID), realtime.Event{
		Type:    "typing",
		Payload: map[string]string{"user_id": userID, "conversation_id": conversationID},
	})
	return nil
}

// ClearTyping is invoked on send and on idle timeout. A missed clear is
// self-correcting on the next keystroke or send.
func (s *profileService) ClearTyping(ctx context.Context, userID string) error {
	if err := s.repo.SetTyping(ctx, userID, nil); err != nil {
		return err
	}
	s.bus.Publish(ctx, realtime.ProfileStream(userID), realtime.Event{
		Type:    "typing",
		Payload: map[string]string{"user_id": userID, "conversation_id": ""},
	})
	return nil
}
