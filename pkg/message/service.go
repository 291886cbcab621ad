package message

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"ideahub/pkg/blob"
	"ideahub/pkg/conversation"
	"ideahub/pkg/identity"
	"ideahub/pkg/realtime"
)

var (
	ErrEmptyMessage       = errors.New("message has no text and no attachments")
	ErrMessageTooLong     = errors.New("message content too long")
	ErrTooManyAttachments = errors.New("too many attachments")
)

const (
	maxTextLength  = 10000
	maxAttachments = 10
	previewLength  = 80
)

type MessageService interface {
	Send(ctx context.Context, actor identity.Identity, conversationID, text string, attachments []Attachment) ([]Message, error)
	MarkRead(ctx context.Context, reader, conversationID string, messageIDs []string) ([]string, error)
	SoftDelete(ctx context.Context, actor identity.Identity, messageID string) (Message, error)
	React(ctx context.Context, actor identity.Identity, messageID, emoji string) (Message, error)
	History(ctx context.Context, viewer, conversationID string, limit int, before time.Time) ([]Message, error)
}

type messageService struct {
	repo          MessageRepository
	conversations conversation.ConversationService
	blobs         blob.Store
	bus           realtime.Publisher
	logger        *log.Logger
}

func NewMessageService(repo MessageRepository, conversations conversation.ConversationService,
	blobs blob.Store, bus realtime.Publisher) MessageService {
	return &messageService{
		repo:          repo,
		conversations: conversations,
		blobs:         blobs,
		bus:           bus,
		logger:        log.New(log.Writer(), "[message] ", log.LstdFlags),
	}
}

// Send appends one message per text body and one per attachment. Each part is
// independently ordered; a failed upload stops the compound send but leaves
// earlier parts recorded (documented best-effort behavior, surfaced to the
// sender for retry).
func (s *messageService) Send(ctx context.Context, actor identity.Identity, conversationID, text string, attachments []Attachment) ([]Message, error) {
	if err := identity.Gate(actor); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetForUser(ctx, conversationID, actor.ID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return nil, ErrMessageTooLong
	}
	if len(attachments) > maxAttachments {
		return nil, ErrTooManyAttachments
	}

	sent := make([]Message, 0, len(attachments)+1)

	if text != "" {
		m, err := s.append(ctx, Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			SenderID:       actor.ID,
			Kind:           KindText,
			Body:           text,
		})
		if err != nil {
			return sent, err
		}
		sent = append(sent, m)
	}

	for _, att := range attachments {
		path := fmt.Sprintf("chatFiles/%s/%s_%s", conv.ID, uuid.New().String(), sanitizeFileName(att.FileName))
		url, err := s.blobs.Upload(ctx, att.Data, path)
		if err != nil {
			// Nothing is recorded for a failed upload; the sender retries.
			return sent, fmt.Errorf("%w: %s", blob.ErrUploadFailed, att.FileName)
		}

		kind := KindFile
		if strings.HasPrefix(att.ContentType, "image/") {
			kind = KindImage
		}

		m, err := s.append(ctx, Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			SenderID:       actor.ID,
			Kind:           kind,
			FileURL:        url,
			FileName:       att.FileName,
		})
		if err != nil {
			return sent, err
		}
		sent = append(sent, m)
	}

	s.refreshSummary(ctx, conv, actor.ID, text, sent)
	return sent, nil
}

func (s *messageService) append(ctx context.Context, m Message) (Message, error) {
	created, err := s.repo.AppendMessage(ctx, m)
	if err != nil {
		return Message{}, err
	}
	s.bus.Publish(ctx, realtime.ConversationStream(m.ConversationID),
		realtime.Event{Type: "message", Payload: created})
	return created, nil
}

// refreshSummary updates the conversation preview to the most recent text
// part, or a placeholder for attachment-only sends, and nudges both
// participants' conversation lists.
func (s *messageService) refreshSummary(ctx context.Context, conv conversation.Conversation, senderID, text string, sent []Message) {
	if len(sent) == 0 {
		return
	}

	preview := text
	if preview == "" {
		last := sent[len(sent)-1]
		preview = "\U0001F4CE " + last.FileName
	}
	// Cut on rune boundaries so multi-byte text never yields a broken
	// preview.
	if r := []rune(preview); len(r) > previewLength {
		preview = string(r[:previewLength])
	}

	if err := s.conversations.RefreshSummary(ctx, conv.ID, preview, senderID); err != nil {
		s.logger.Printf("refresh summary for %s: %v", conv.ID, err)
		return
	}

	for _, participant := range conv.Participants {
		s.bus.Publish(ctx, realtime.UserStream(participant), realtime.Event{
			Type: "conversation",
			Payload: map[string]string{
				"conversation_id": conv.ID,
				"last_message":    preview,
				"last_sender_id":  senderID,
			},
		})
	}
}

// MarkRead records one observation event as a single batch. Idempotent, and
// safe to retry on the next feed refresh if the batch fails.
func (s *messageService) MarkRead(ctx context.Context, reader, conversationID string, messageIDs []string) ([]string, error) {
	conv, err := s.conversations.GetForUser(ctx, conversationID, reader)
	if err != nil {
		return nil, err
	}

	changed, err := s.repo.MarkRead(ctx, conv.ID, reader, messageIDs)
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.bus.Publish(ctx, realtime.ConversationStream(conv.ID), realtime.Event{
			Type: "read",
			Payload: map[string]any{
				"reader":      reader,
				"message_ids": changed,
			},
		})
	}

	return changed, nil
}

// SoftDelete is sender-only and one-way. The payload stays stored but no
// read path ever returns it again.
func (s *messageService) SoftDelete(ctx context.Context, actor identity.Identity, messageID string) (Message, error) {
	if err := identity.Gate(actor); err != nil {
		return Message{}, err
	}

	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if m.SenderID != actor.ID {
		return Message{}, identity.ErrNotAuthorized
	}
	if m.Deleted() {
		return Message{}, ErrAlreadyDeleted
	}

	if err := s.repo.MarkDeleted(ctx, messageID); err != nil {
		return Message{}, err
	}

	m.Status = StatusDeleted
	m = m.Sanitized()
	s.bus.Publish(ctx, realtime.ConversationStream(m.ConversationID),
		realtime.Event{Type: "deleted", Payload: m})
	return m, nil
}

// React toggles the caller's single reaction slot: same emoji clears it, a
// different emoji replaces it, empty clears explicitly. Applying the same
// toggle twice restores the original state.
func (s *messageService) React(ctx context.Context, actor identity.Identity, messageID, emoji string) (Message, error) {
	if err := identity.Gate(actor); err != nil {
		return Message{}, err
	}

	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if m.Deleted() {
		return Message{}, ErrAlreadyDeleted
	}

	if _, err := s.conversations.GetForUser(ctx, m.ConversationID, actor.ID); err != nil {
		return Message{}, err
	}

	current := m.Reactions[actor.ID]
	var updated Message
	if emoji == "" || emoji == current {
		if current == "" {
			// Nothing to clear; reacting is no-op-safe.
			return m, nil
		}
		updated, err = s.repo.ClearReaction(ctx, messageID, actor.ID)
	} else {
		updated, err = s.repo.SetReaction(ctx, messageID, actor.ID, emoji)
	}
	if err != nil {
		return Message{}, err
	}

	s.bus.Publish(ctx, realtime.ConversationStream(updated.ConversationID),
		realtime.Event{Type: "reaction", Payload: updated})
	return updated, nil
}

func (s *messageService) History(ctx context.Context, viewer, conversationID string, limit int, before time.Time) ([]Message, error) {
	conv, err := s.conversations.GetForUser(ctx, conversationID, viewer)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conv.ID, limit, before)
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "file"
	}
	return name
}
