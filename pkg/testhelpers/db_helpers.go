package testhelpers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// CreateTestProfile inserts a verified profile row and returns its user id.
func CreateTestProfile(t *testing.T, db *pgxpool.Pool) string {
	t.Helper()

	ctx := context.Background()
	suffix := nextSuffix()
	userID := fmt.Sprintf("test-user-%d", suffix)
	email := fmt.Sprintf("%s@example.com", userID)

	_, err := db.Exec(ctx,
		"INSERT INTO profiles (user_id, display_name, email, email_verified) VALUES ($1, $2, $3, true)",
		userID, fmt.Sprintf("Test User %d", suffix), email)
	require.NoError(t, err)
	return userID
}

// CreateTestRequest inserts a pending chat request and returns its id.
func CreateTestRequest(t *testing.T, db *pgxpool.Pool, contextID, requesterID, ownerID string) string {
	t.Helper()

	ctx := context.Background()
	id := fmt.Sprintf("%s_%s_%s", contextID, requesterID, ownerID)

	_, err := db.Exec(ctx,
		"INSERT INTO chat_requests (id, context_id, context_title, requester_id, requester_name, owner_id) VALUES ($1, $2, 'Test Idea', $3, 'Test Requester', $4)",
		id, contextID, requesterID, ownerID)
	require.NoError(t, err)
	return id
}

// CreateTestConversation inserts a conversation for a sorted participant
// pair and returns its id.
func CreateTestConversation(t *testing.T, db *pgxpool.Pool, contextID, userA, userB string) string {
	t.Helper()

	if userB < userA {
		userA, userB = userB, userA
	}
	id := fmt.Sprintf("%s_%s_%s", contextID, userA, userB)

	ctx := context.Background()
	_, err := db.Exec(ctx,
		"INSERT INTO conversations (id, context_id, participant_a, participant_b, last_message) VALUES ($1, $2, $3, $4, 'Chat started')",
		id, contextID, userA, userB)
	require.NoError(t, err)
	return id
}

// CreateTestMessage inserts an active text message and returns its id.
func CreateTestMessage(t *testing.T, db *pgxpool.Pool, conversationID, senderID, body string) string {
	t.Helper()

	ctx := context.Background()
	id := fmt.Sprintf("test-message-%d", nextSuffix())

	_, err := db.Exec(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, kind, body, read_by) VALUES ($1, $2, $3, 'text', $4, ARRAY[$3])",
		id, conversationID, senderID, body)
	require.NoError(t, err)
	return id
}
