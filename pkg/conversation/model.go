package conversation

import (
	"sort"
	"strings"
	"time"
)

// Conversation is created exactly once, at request-acceptance time. The
// participant pair is immutable and is the sole access-control check for all
// message operations.
type Conversation struct {
	ID           string    `json:"id"`
	ContextID    string    `json:"context_id"`
	Participants [2]string `json:"participants"`
	LastMessage  string    `json:"last_message"`
	LastSenderID string    `json:"last_sender_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationID derives the id purely from its inputs, so both clients and
// the accept path compute the same id without a round trip. The participant
// sort fixes a canonical order.
func ConversationID(contextID, userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join([]string{contextID, pair[0], pair[1]}, "_")
}

// SortParticipants returns the canonical (a, b) ordering used by storage.
func SortParticipants(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// IsParticipant reports membership; order of the stored pair is irrelevant.
func (c Conversation) IsParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer returns the other participant for a member, or "" for outsiders.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}
