package conversation

import "context"

type ConversationService interface {
	Open(ctx context.Context, contextID, userA, userB string) (Conversation, error)
	GetForUser(ctx context.Context, id, userID string) (Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]Conversation, error)
	RefreshSummary(ctx context.Context, id, preview, senderID string) error
}

type conversationService struct {
	repo ConversationRepository
}

func NewConversationService(repo ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// Open is idempotent: the deterministic id makes repeated accept calls for the
// same pairing converge on one conversation.
func (s *conversationService) Open(ctx context.Context, contextID, userA, userB string) (Conversation, error) {
	return s.repo.CreateIfAbsent(ctx, contextID, userA, userB)
}

// GetForUser loads a conversation and enforces membership, the single access
// check gating every message operation.
func (s *conversationService) GetForUser(ctx context.Context, id, userID string) (Conversation, error) {
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	if !c.IsParticipant(userID) {
		return Conversation{}, ErrNotParticipant
	}
	return c, nil
}

func (s *conversationService) ListForUser(ctx context.Context, userID string) ([]Conversation, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *conversationService) RefreshSummary(ctx context.Context, id, preview, senderID string) error {
	return s.repo.UpdateSummary(ctx, id, preview, senderID)
}
