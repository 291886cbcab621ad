package chatrequest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound         = errors.New("chat request not found")
	ErrDuplicateRequest = errors.New("chat request already pending")
	ErrAlreadyHandled   = errors.New("chat request already handled")
	ErrSelfChat         = errors.New("cannot chat with yourself")
)

type RequestRepository interface {
	GetRequest(ctx context.Context, id string) (Request, error)
	InsertPending(ctx context.Context, req Request) (Request, error)
	Resend(ctx context.Context, id string) (Request, error)
	MarkAccepted(ctx context.Context, id, conversationID string) (Request, error)
	MarkRejected(ctx context.Context, id string) (Request, error)
	ListPendingForOwner(ctx context.Context, ownerID string) ([]Request, error)
}

type postgresRequestRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &postgresRequestRepository{pool: pool}
}

const requestColumns = `id, context_id, context_title, requester_id, requester_name, owner_id,
	status, conversation_id, created_at, updated_at, handled_at`

func (r *postgresRequestRepository) GetRequest(ctx context.Context, id string) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM chat_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// InsertPending creates a fresh pending record. The primary key doubles as the
// uniqueness constraint, so a lost race surfaces as a unique violation rather
// than a second row.
func (r *postgresRequestRepository) InsertPending(ctx context.Context, req Request) (Request, error) {
	query := `INSERT INTO chat_requests (id, context_id, context_title, requester_id, requester_name, owner_id, status)
	          VALUES ($1, $2, $3, $4, $5, $6, 'pending')
	          RETURNING ` + requestColumns

	row := r.pool.QueryRow(ctx, query,
		req.ID, req.ContextID, req.ContextTitle, req.RequesterID, req.RequesterName, req.OwnerID)

	created, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Request{}, ErrDuplicateRequest
		}
		return Request{}, err
	}
	return created, nil
}

// Resend flips a rejected request back to pending, clearing the handling
// fields. The status guard keeps the transition legal under concurrency.
func (r *postgresRequestRepository) Resend(ctx context.Context, id string) (Request, error) {
	query := `UPDATE chat_requests
	          SET status = 'pending', handled_at = NULL, conversation_id = NULL, updated_at = now()
	          WHERE id = $1 AND status = 'rejected'
	          RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Request{}, ErrAlreadyHandled
		}
		return Request{}, err
	}
	return req, nil
}

func (r *postgresRequestRepository) MarkAccepted(ctx context.Context, id, conversationID string) (Request, error) {
	query := `UPDATE chat_requests
	          SET status = 'accepted', conversation_id = $2, handled_at = now(), updated_at = now()
	          WHERE id = $1 AND status = 'pending'
	          RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, conversationID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Request{}, ErrAlreadyHandled
		}
		return Request{}, err
	}
	return req, nil
}

func (r *postgresRequestRepository) MarkRejected(ctx context.Context, id string) (Request, error) {
	query := `UPDATE chat_requests
	          SET status = 'rejected', conversation_id = NULL, handled_at = now(), updated_at = now()
	          WHERE id = $1 AND status = 'pending'
	          RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Request{}, ErrAlreadyHandled
		}
		return Request{}, err
	}
	return req, nil
}

func (r *postgresRequestRepository) ListPendingForOwner(ctx context.Context, ownerID string) ([]Request, error) {
	query := `SELECT ` + requestColumns + `
	          FROM chat_requests
	          WHERE owner_id = $1 AND status = 'pending'
	          ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.ContextID, &req.ContextTitle, &req.RequesterID, &req.RequesterName,
		&req.OwnerID, &req.Status, &req.ConversationID, &req.CreatedAt, &req.UpdatedAt, &req.HandledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}
