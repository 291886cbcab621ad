package message

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("message not found")
	ErrAlreadyDeleted = errors.New("message already deleted")
)

type MessageRepository interface {
	AppendMessage(ctx context.Context, m Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]Message, error)
	MarkRead(ctx context.Context, conversationID, reader string, messageIDs []string) ([]string, error)
	MarkDeleted(ctx context.Context, id string) error
	SetReaction(ctx context.Context, id, userID, emoji string) (Message, error)
	ClearReaction(ctx context.Context, id, userID string) (Message, error)
}

type postgresMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &postgresMessageRepository{pool: pool}
}

const messageColumns = `id, conversation_id, sender_id, kind, body, file_url, file_name,
	status, read_by, reactions, seq, created_at`

// AppendMessage records one message. created_at and seq come back from the
// database; the sender is the first entry of read_by.
func (r *postgresMessageRepository) AppendMessage(ctx context.Context, m Message) (Message, error) {
	query := `INSERT INTO messages (id, conversation_id, sender_id, kind, body, file_url, file_name, read_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, ARRAY[$3])
	          RETURNING ` + messageColumns

	row := r.pool.QueryRow(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.Kind, m.Body, m.FileURL, m.FileName)
	return scanMessage(row)
}

func (r *postgresMessageRepository) GetMessage(ctx context.Context, id string) (Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// ListMessages returns the window of newest messages before the cursor, in
// ascending server order. Fetching from the newest end keeps the tail of a
// long conversation reachable on first load; paging backwards passes the
// oldest returned created_at as the next cursor. Deleted messages keep their
// slot but are sanitized before leaving the repository.
func (r *postgresMessageRepository) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + messageColumns + `
	          FROM messages
	          WHERE conversation_id = $1 AND created_at < $2
	          ORDER BY created_at DESC, seq DESC
	          LIMIT $3`

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctxTimeout, query, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m.Sanitized())
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query walks newest-first; clients render oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkRead appends the reader to read_by for every listed message it has not
// observed and did not send, as one batched statement. Re-running it is a
// no-op; each reader only ever appends its own id, so concurrent readers
// cannot conflict.
func (r *postgresMessageRepository) MarkRead(ctx context.Context, conversationID, reader string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query := `UPDATE messages
	          SET read_by = array_append(read_by, $2)
	          WHERE conversation_id = $1
	            AND id = ANY($3)
	            AND sender_id <> $2
	            AND NOT (read_by @> ARRAY[$2])
	          RETURNING id`

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctxTimeout, query, conversationID, reader, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changed := make([]string, 0, len(messageIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		changed = append(changed, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return changed, nil
}

// MarkDeleted flips active to deleted, a one-way transition enforced by the
// status guard.
func (r *postgresMessageRepository) MarkDeleted(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx,
		"UPDATE messages SET status = 'deleted' WHERE id = $1 AND status = 'active'", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyDeleted
	}
	return nil
}

// SetReaction writes the caller's single reaction slot. The merge touches
// only that key, so two users reacting at once never conflict.
func (r *postgresMessageRepository) SetReaction(ctx context.Context, id, userID, emoji string) (Message, error) {
	query := `UPDATE messages
	          SET reactions = reactions || jsonb_build_object($2::text, $3::text)
	          WHERE id = $1 AND status = 'active'
	          RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id, userID, emoji))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, ErrAlreadyDeleted
		}
		return Message{}, err
	}
	return m, nil
}

func (r *postgresMessageRepository) ClearReaction(ctx context.Context, id, userID string) (Message, error) {
	query := `UPDATE messages
	          SET reactions = reactions - $2
	          WHERE id = $1 AND status = 'active'
	          RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, ErrAlreadyDeleted
		}
		return Message{}, err
	}
	return m, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Kind, &m.Body, &m.FileURL, &m.FileName,
		&m.Status, &m.ReadBy, &m.Reactions, &m.Seq, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	if m.Reactions == nil {
		m.Reactions = map[string]string{}
	}
	return m, nil
}
