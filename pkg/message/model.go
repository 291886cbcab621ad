package message

import (
	"io"
	"time"
)

const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"

	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Message is one unit of the append-only conversation log. Ordering is the
// pair (CreatedAt, Seq), both assigned by the database; client clocks are
// never trusted.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id"`
	Kind           string            `json:"kind"`
	Body           string            `json:"body,omitempty"`
	FileURL        string            `json:"file_url,omitempty"`
	FileName       string            `json:"file_name,omitempty"`
	Status         string            `json:"status"`
	ReadBy         []string          `json:"read_by"`
	Reactions      map[string]string `json:"reactions"`
	Seq            int64             `json:"seq"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Deleted reports whether the message has been soft-deleted.
func (m Message) Deleted() bool { return m.Status == StatusDeleted }

// Sanitized blanks the payload of a deleted message. Every read path returns
// sanitized copies; the stored payload is never exposed after deletion.
func (m Message) Sanitized() Message {
	if m.Deleted() {
		m.Body = ""
		m.FileURL = ""
		m.FileName = ""
	}
	return m
}

// ReadBySet reports whether userID has observed the message.
func (m Message) ReadBySet(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Attachment is one file in a compound send. Upload happens before the
// message referencing it is recorded.
type Attachment struct {
	FileName    string
	ContentType string
	Data        io.Reader
}
