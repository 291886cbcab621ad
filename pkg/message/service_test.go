package message

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"ideahub/pkg/blob"
	"ideahub/pkg/conversation"
	"ideahub/pkg/identity"
	"ideahub/pkg/realtime"
)

// fakeMessageRepo is an in-memory MessageRepository mirroring the database
// guarantees: it assigns created_at and seq, seeds read_by with the sender,
// and sanitizes deleted payloads on list.
type fakeMessageRepo struct {
	messages map[string]Message
	nextSeq  int64
	clock    time.Time
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: make(map[string]Message),
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeMessageRepo) AppendMessage(ctx context.Context, m Message) (Message, error) {
	f.nextSeq++
	f.clock = f.clock.Add(time.Millisecond)
	m.Status = StatusActive
	m.ReadBy = []string{m.SenderID}
	m.Reactions = map[string]string{}
	m.Seq = f.nextSeq
	m.CreatedAt = f.clock
	f.messages[m.ID] = m
	return m, nil
}

func (f *fakeMessageRepo) GetMessage(ctx context.Context, id string) (Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageRepo) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]Message, error) {
	var out []Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.CreatedAt.Before(before) {
			out = append(out, m.Sanitized())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageRepo) MarkRead(ctx context.Context, conversationID, reader string, messageIDs []string) ([]string, error) {
	var changed []string
	for _, id := range messageIDs {
		m, ok := f.messages[id]
		if !ok || m.ConversationID != conversationID || m.SenderID == reader || m.ReadBySet(reader) {
			continue
		}
		m.ReadBy = append(m.ReadBy, reader)
		f.messages[id] = m
		changed = append(changed, id)
	}
	return changed, nil
}

func (f *fakeMessageRepo) MarkDeleted(ctx context.Context, id string) error {
	m, ok := f.messages[id]
	if !ok {
		return ErrNotFound
	}
	if m.Status != StatusActive {
		return ErrAlreadyDeleted
	}
	m.Status = StatusDeleted
	f.messages[id] = m
	return nil
}

func (f *fakeMessageRepo) SetReaction(ctx context.Context, id, userID, emoji string) (Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if m.Status != StatusActive {
		return Message{}, ErrAlreadyDeleted
	}
	reactions := map[string]string{}
	for k, v := range m.Reactions {
		reactions[k] = v
	}
	reactions[userID] = emoji
	m.Reactions = reactions
	f.messages[id] = m
	return m, nil
}

func (f *fakeMessageRepo) ClearReaction(ctx context.Context, id, userID string) (Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if m.Status != StatusActive {
		return Message{}, ErrAlreadyDeleted
	}
	reactions := map[string]string{}
	for k, v := range m.Reactions {
		reactions[k] = v
	}
	delete(reactions, userID)
	m.Reactions = reactions
	f.messages[id] = m
	return m, nil
}

// fakeConversationService serves a single conversation and enforces
// membership the way the real service does.
type fakeConversationService struct {
	conv     conversation.Conversation
	previews []string
}

func (f *fakeConversationService) Open(ctx context.Context, contextID, userA, userB string) (conversation.Conversation, error) {
	return f.conv, nil
}

func (f *fakeConversationService) GetForUser(ctx context.Context, id, userID string) (conversation.Conversation, error) {
	if id != f.conv.ID {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	if !f.conv.IsParticipant(userID) {
		return conversation.Conversation{}, conversation.ErrNotParticipant
	}
	return f.conv, nil
}

func (f *fakeConversationService) ListForUser(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	return []conversation.Conversation{f.conv}, nil
}

func (f *fakeConversationService) RefreshSummary(ctx context.Context, id, preview, senderID string) error {
	f.previews = append(f.previews, preview)
	return nil
}

type fakeBlobStore struct {
	failOn string
	paths  []string
}

func (f *fakeBlobStore) Upload(ctx context.Context, r io.Reader, path string) (string, error) {
	if f.failOn != "" && strings.Contains(path, f.failOn) {
		return "", blob.ErrUploadFailed
	}
	f.paths = append(f.paths, path)
	return "http://localhost:8080/static/" + path, nil
}

var (
	alice = identity.Identity{ID: "alice", DisplayName: "Alice", EmailVerified: true}
	bob   = identity.Identity{ID: "bob", DisplayName: "Bob", EmailVerified: true}
)

func newMessageFixture(t *testing.T) (MessageService, *fakeMessageRepo, *fakeConversationService, *fakeBlobStore) {
	t.Helper()
	repo := newFakeMessageRepo()
	convs := &fakeConversationService{conv: conversation.Conversation{
		ID:           conversation.ConversationID("idea-1", "alice", "bob"),
		ContextID:    "idea-1",
		Participants: [2]string{"alice", "bob"},
	}}
	blobs := &fakeBlobStore{}
	svc := NewMessageService(repo, convs, blobs, realtime.NopPublisher{})
	return svc, repo, convs, blobs
}

func TestSendSeedsReadByWithSender(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)

	sent, err := svc.Send(context.Background(), alice, convs.conv.ID, "hello", nil)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.True(t, sent[0].ReadBySet("alice"))
	require.False(t, sent[0].ReadBySet("bob"))
	require.Equal(t, StatusActive, sent[0].Status)
}

func TestSendValidation(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, alice, convs.conv.ID, "   ", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Send(ctx, alice, convs.conv.ID, strings.Repeat("x", maxTextLength+1), nil)
	require.ErrorIs(t, err, ErrMessageTooLong)

	attachments := make([]Attachment, maxAttachments+1)
	for i := range attachments {
		attachments[i] = Attachment{FileName: "f.txt", Data: strings.NewReader("x")}
	}
	_, err = svc.Send(ctx, alice, convs.conv.ID, "", attachments)
	require.ErrorIs(t, err, ErrTooManyAttachments)

	_, err = svc.Send(ctx, identity.Identity{ID: "carol", EmailVerified: true}, convs.conv.ID, "hi", nil)
	require.ErrorIs(t, err, conversation.ErrNotParticipant)

	_, err = svc.Send(ctx, identity.Identity{ID: "alice"}, convs.conv.ID, "hi", nil)
	require.ErrorIs(t, err, identity.ErrNotAuthorized)
}

func TestSendCompoundRecordsEachPart(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)

	sent, err := svc.Send(context.Background(), alice, convs.conv.ID, "see attached", []Attachment{
		{FileName: "photo.png", ContentType: "image/png", Data: strings.NewReader("png")},
		{FileName: "notes.pdf", ContentType: "application/pdf", Data: strings.NewReader("pdf")},
	})
	require.NoError(t, err)
	require.Len(t, sent, 3)
	require.Equal(t, KindText, sent[0].Kind)
	require.Equal(t, KindImage, sent[1].Kind)
	require.Equal(t, KindFile, sent[2].Kind)
	require.NotEmpty(t, sent[1].FileURL)

	// Parts are independently ordered by server-assigned time.
	require.True(t, sent[0].CreatedAt.Before(sent[1].CreatedAt))
	require.True(t, sent[1].Seq < sent[2].Seq)
}

func TestSendBestEffortOnUploadFailure(t *testing.T) {
	svc, repo, convs, blobs := newMessageFixture(t)
	blobs.failOn = "bad.bin"

	sent, err := svc.Send(context.Background(), alice, convs.conv.ID, "two files", []Attachment{
		{FileName: "good.txt", Data: strings.NewReader("ok")},
		{FileName: "bad.bin", Data: strings.NewReader("boom")},
	})
	require.ErrorIs(t, err, blob.ErrUploadFailed)

	// Text part and the first file landed; the failed part recorded nothing.
	require.Len(t, sent, 2)
	require.Len(t, repo.messages, 2)
}

func TestSendUpdatesConversationPreview(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, alice, convs.conv.ID, strings.Repeat("a", 200), nil)
	require.NoError(t, err)
	_, err = svc.Send(ctx, bob, convs.conv.ID, "", []Attachment{
		{FileName: "deck.pdf", Data: strings.NewReader("pdf")},
	})
	require.NoError(t, err)

	require.Len(t, convs.previews, 2)
	require.Equal(t, previewLength, utf8.RuneCountInString(convs.previews[0]))
	require.Contains(t, convs.previews[1], "deck.pdf")
}

// Truncating a preview of multi-byte text must never split a rune.
func TestSendPreviewTruncatesOnRuneBoundary(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, alice, convs.conv.ID, strings.Repeat("é", 200), nil)
	require.NoError(t, err)

	require.Len(t, convs.previews, 1)
	preview := convs.previews[0]
	require.True(t, utf8.ValidString(preview))
	require.Equal(t, previewLength, utf8.RuneCountInString(preview))
	require.Equal(t, strings.Repeat("é", previewLength), preview)
}

func TestSendLengthLimitCountsRunes(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	// maxTextLength runes of multi-byte text is well over the limit in
	// bytes but must still be accepted.
	_, err := svc.Send(ctx, alice, convs.conv.ID, strings.Repeat("é", maxTextLength), nil)
	require.NoError(t, err)

	_, err = svc.Send(ctx, alice, convs.conv.ID, strings.Repeat("é", maxTextLength+1), nil)
	require.ErrorIs(t, err, ErrMessageTooLong)
}

func TestMarkReadIsIdempotentAndSkipsSender(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	sent, err := svc.Send(ctx, alice, convs.conv.ID, "hello", nil)
	require.NoError(t, err)
	id := sent[0].ID

	// The sender marking their own message changes nothing.
	changed, err := svc.MarkRead(ctx, "alice", convs.conv.ID, []string{id})
	require.NoError(t, err)
	require.Empty(t, changed)

	changed, err = svc.MarkRead(ctx, "bob", convs.conv.ID, []string{id})
	require.NoError(t, err)
	require.Equal(t, []string{id}, changed)

	// Second observation of the same window is a no-op.
	changed, err = svc.MarkRead(ctx, "bob", convs.conv.ID, []string{id})
	require.NoError(t, err)
	require.Empty(t, changed)

	_, err = svc.MarkRead(ctx, "carol", convs.conv.ID, []string{id})
	require.ErrorIs(t, err, conversation.ErrNotParticipant)
}

func TestSoftDeleteSenderOnlyAndOneWay(t *testing.T) {
	svc, repo, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	sent, err := svc.Send(ctx, alice, convs.conv.ID, "delete me", nil)
	require.NoError(t, err)
	id := sent[0].ID

	_, err = svc.SoftDelete(ctx, bob, id)
	require.ErrorIs(t, err, identity.ErrNotAuthorized)

	deleted, err := svc.SoftDelete(ctx, alice, id)
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, deleted.Status)
	require.Empty(t, deleted.Body)

	_, err = svc.SoftDelete(ctx, alice, id)
	require.ErrorIs(t, err, ErrAlreadyDeleted)

	// The stored payload survives but no read path exposes it.
	require.Equal(t, "delete me", repo.messages[id].Body)
	history, err := svc.History(ctx, "bob", convs.conv.ID, 50, time.Now())
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Empty(t, history[0].Body)
	require.Equal(t, StatusDeleted, history[0].Status)
}

func TestReactionToggleLaw(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	sent, err := svc.Send(ctx, alice, convs.conv.ID, "react to me", nil)
	require.NoError(t, err)
	id := sent[0].ID

	m, err := svc.React(ctx, bob, id, "👍")
	require.NoError(t, err)
	require.Equal(t, "👍", m.Reactions["bob"])

	// A different emoji replaces; each user holds one slot.
	m, err = svc.React(ctx, bob, id, "❤️")
	require.NoError(t, err)
	require.Equal(t, "❤️", m.Reactions["bob"])

	m, err = svc.React(ctx, alice, id, "👍")
	require.NoError(t, err)
	require.Equal(t, "👍", m.Reactions["alice"])
	require.Equal(t, "❤️", m.Reactions["bob"])

	// Same emoji toggles off; toggling twice restores the prior state.
	m, err = svc.React(ctx, bob, id, "❤️")
	require.NoError(t, err)
	require.NotContains(t, m.Reactions, "bob")
	m, err = svc.React(ctx, bob, id, "❤️")
	require.NoError(t, err)
	require.Equal(t, "❤️", m.Reactions["bob"])

	// Empty emoji clears, and clearing with nothing set is a no-op.
	m, err = svc.React(ctx, bob, id, "")
	require.NoError(t, err)
	require.NotContains(t, m.Reactions, "bob")
	m, err = svc.React(ctx, bob, id, "")
	require.NoError(t, err)
	require.NotContains(t, m.Reactions, "bob")

	_, err = svc.React(ctx, identity.Identity{ID: "carol", EmailVerified: true}, id, "👍")
	require.ErrorIs(t, err, conversation.ErrNotParticipant)
}

func TestReactOnDeletedMessageRejected(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	sent, err := svc.Send(ctx, alice, convs.conv.ID, "gone soon", nil)
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, alice, sent[0].ID)
	require.NoError(t, err)

	_, err = svc.React(ctx, bob, sent[0].ID, "👍")
	require.ErrorIs(t, err, ErrAlreadyDeleted)
}

func TestHistoryOrderAndPagination(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three", "four"} {
		_, err := svc.Send(ctx, alice, convs.conv.ID, body, nil)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, "bob", convs.conv.ID, 50, time.Now())
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		require.True(t, prev.CreatedAt.Before(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.Seq < cur.Seq))
	}
	require.Equal(t, "one", history[0].Body)

	page, err := svc.History(ctx, "bob", convs.conv.ID, 2, time.Now())
	require.NoError(t, err)
	require.Len(t, page, 2)

	older, err := svc.History(ctx, "bob", convs.conv.ID, 50, history[2].CreatedAt)
	require.NoError(t, err)
	require.Len(t, older, 2)

	_, err = svc.History(ctx, "carol", convs.conv.ID, 50, time.Now())
	require.ErrorIs(t, err, conversation.ErrNotParticipant)
}

// A limited first load must land on the tail of the conversation, and paging
// backwards from the oldest returned message must reach everything older.
func TestHistoryReturnsNewestWindow(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three", "four", "five"} {
		_, err := svc.Send(ctx, alice, convs.conv.ID, body, nil)
		require.NoError(t, err)
	}

	window, err := svc.History(ctx, "bob", convs.conv.ID, 2, time.Now())
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, "four", window[0].Body)
	require.Equal(t, "five", window[1].Body)

	older, err := svc.History(ctx, "bob", convs.conv.ID, 2, window[0].CreatedAt)
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.Equal(t, "two", older[0].Body)
	require.Equal(t, "three", older[1].Body)

	oldest, err := svc.History(ctx, "bob", convs.conv.ID, 2, older[0].CreatedAt)
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	require.Equal(t, "one", oldest[0].Body)
}

// A realistic exchange: messages flow both ways, receipts land per reader,
// a reaction is applied, and one message is retracted.
func TestConversationLifecycle(t *testing.T) {
	svc, _, convs, _ := newMessageFixture(t)
	ctx := context.Background()

	first, err := svc.Send(ctx, alice, convs.conv.ID, "hey, saw your idea", nil)
	require.NoError(t, err)
	reply, err := svc.Send(ctx, bob, convs.conv.ID, "thanks! happy to chat", nil)
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, "bob", convs.conv.ID, []string{first[0].ID})
	require.NoError(t, err)
	_, err = svc.MarkRead(ctx, "alice", convs.conv.ID, []string{reply[0].ID})
	require.NoError(t, err)

	_, err = svc.React(ctx, alice, reply[0].ID, "🎉")
	require.NoError(t, err)

	typo, err := svc.Send(ctx, alice, convs.conv.ID, "lets meeet", nil)
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, alice, typo[0].ID)
	require.NoError(t, err)

	history, err := svc.History(ctx, "bob", convs.conv.ID, 50, time.Now())
	require.NoError(t, err)
	require.Len(t, history, 3)

	require.True(t, history[0].ReadBySet("alice"))
	require.True(t, history[0].ReadBySet("bob"))
	require.Equal(t, "🎉", history[1].Reactions["alice"])
	require.Equal(t, StatusDeleted, history[2].Status)
	require.Empty(t, history[2].Body)
	require.Equal(t, "alice", history[2].SenderID)
}
