package conversation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("conversation not found")
	ErrNotParticipant = errors.New("not a conversation participant")
)

type ConversationRepository interface {
	CreateIfAbsent(ctx context.Context, contextID, userA, userB string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]Conversation, error)
	UpdateSummary(ctx context.Context, id, preview, senderID string) error
}

type postgresConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &postgresConversationRepository{pool: pool}
}

// CreateIfAbsent inserts the conversation under its deterministic id. A
// concurrent double-accept is safe: ON CONFLICT DO NOTHING never clobbers an
// existing row's created_at, and the follow-up read returns whichever insert
// won.
func (r *postgresConversationRepository) CreateIfAbsent(ctx context.Context, contextID, userA, userB string) (Conversation, error) {
	a, b := SortParticipants(userA, userB)
	id := ConversationID(contextID, a, b)

	insert := `INSERT INTO conversations (id, context_id, participant_a, participant_b, last_message)
	           VALUES ($1, $2, $3, $4, 'Chat started')
	           ON CONFLICT (id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, insert, id, contextID, a, b); err != nil {
		return Conversation{}, err
	}

	return r.GetConversation(ctx, id)
}

func (r *postgresConversationRepository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	query := `SELECT id, context_id, participant_a, participant_b, last_message, last_sender_id, created_at, updated_at
	          FROM conversations
	          WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	return scanConversation(row)
}

func (r *postgresConversationRepository) ListForUser(ctx context.Context, userID string) ([]Conversation, error) {
	query := `SELECT id, context_id, participant_a, participant_b, last_message, last_sender_id, created_at, updated_at
	          FROM conversations
	          WHERE participant_a = $1 OR participant_b = $1
	          ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return conversations, nil
}

func (r *postgresConversationRepository) UpdateSummary(ctx context.Context, id, preview, senderID string) error {
	cmd, err := r.pool.Exec(ctx,
		"UPDATE conversations SET last_message = $2, last_sender_id = $3, updated_at = now() WHERE id = $1",
		id, preview, senderID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ContextID, &c.Participants[0], &c.Participants[1],
		&c.LastMessage, &c.LastSenderID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	return c, nil
}
