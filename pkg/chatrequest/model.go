package chatrequest

import (
	"strings"
	"time"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Request gates conversation creation behind mutual consent. One live request
// exists per (context, requester, owner) triple; the id carries that
// constraint.
type Request struct {
	ID             string     `json:"id"`
	ContextID      string     `json:"context_id"`
	ContextTitle   string     `json:"context_title"`
	RequesterID    string     `json:"requester_id"`
	RequesterName  string     `json:"requester_name"`
	OwnerID        string     `json:"owner_id"`
	Status         string     `json:"status"`
	ConversationID *string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	HandledAt      *time.Time `json:"handled_at,omitempty"`
}

// RequestID derives the deterministic key for a triple. Unlike conversation
// ids the requester/owner order matters: who asked whom is part of the
// identity.
func RequestID(contextID, requesterID, ownerID string) string {
	return strings.Join([]string{contextID, requesterID, ownerID}, "_")
}

// Outcome is what requestChat reports back to the caller.
type Outcome struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id,omitempty"`
	Resent         bool   `json:"resent,omitempty"`
}
