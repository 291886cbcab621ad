package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockConversationRepository struct {
	mock.Mock
}

func (m *mockConversationRepository) CreateIfAbsent(ctx context.Context, contextID, userA, userB string) (Conversation, error) {
	args := m.Called(ctx, contextID, userA, userB)
	c, _ := args.Get(0).(Conversation)
	return c, args.Error(1)
}

func (m *mockConversationRepository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(Conversation)
	return c, args.Error(1)
}

func (m *mockConversationRepository) ListForUser(ctx context.Context, userID string) ([]Conversation, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]Conversation)
	return list, args.Error(1)
}

func (m *mockConversationRepository) UpdateSummary(ctx context.Context, id, preview, senderID string) error {
	args := m.Called(ctx, id, preview, senderID)
	return args.Error(0)
}

func TestConversationID_OrderIndependent(t *testing.T) {
	require.Equal(t,
		ConversationID("idea-1", "bob", "alice"),
		ConversationID("idea-1", "alice", "bob"))
	require.Equal(t, "idea-1_alice_bob", ConversationID("idea-1", "bob", "alice"))
}

func TestConversationID_DistinctContexts(t *testing.T) {
	require.NotEqual(t,
		ConversationID("idea-1", "alice", "bob"),
		ConversationID("idea-2", "alice", "bob"))
}

func TestIsParticipant(t *testing.T) {
	c := Conversation{Participants: [2]string{"alice", "bob"}}
	require.True(t, c.IsParticipant("alice"))
	require.True(t, c.IsParticipant("bob"))
	require.False(t, c.IsParticipant("mallory"))
}

func TestPeer(t *testing.T) {
	c := Conversation{Participants: [2]string{"alice", "bob"}}
	require.Equal(t, "bob", c.Peer("alice"))
	require.Equal(t, "alice", c.Peer("bob"))
	require.Equal(t, "", c.Peer("mallory"))
}

func TestGetForUser_RejectsOutsider(t *testing.T) {
	repo := new(mockConversationRepository)
	service := NewConversationService(repo)

	repo.On("GetConversation", mock.Anything, "idea-1_alice_bob").
		Return(Conversation{ID: "idea-1_alice_bob", Participants: [2]string{"alice", "bob"}}, nil)

	_, err := service.GetForUser(context.Background(), "idea-1_alice_bob", "mallory")

	require.ErrorIs(t, err, ErrNotParticipant)
	repo.AssertExpectations(t)
}

func TestGetForUser_MemberOk(t *testing.T) {
	repo := new(mockConversationRepository)
	service := NewConversationService(repo)

	repo.On("GetConversation", mock.Anything, "idea-1_alice_bob").
		Return(Conversation{ID: "idea-1_alice_bob", Participants: [2]string{"alice", "bob"}}, nil)

	conv, err := service.GetForUser(context.Background(), "idea-1_alice_bob", "bob")

	require.NoError(t, err)
	require.Equal(t, "idea-1_alice_bob", conv.ID)
}

func TestOpen_DelegatesToCreateIfAbsent(t *testing.T) {
	repo := new(mockConversationRepository)
	service := NewConversationService(repo)

	repo.On("CreateIfAbsent", mock.Anything, "idea-1", "bob", "alice").
		Return(Conversation{ID: "idea-1_alice_bob"}, nil)

	conv, err := service.Open(context.Background(), "idea-1", "bob", "alice")

	require.NoError(t, err)
	require.Equal(t, "idea-1_alice_bob", conv.ID)
	repo.AssertExpectations(t)
}
